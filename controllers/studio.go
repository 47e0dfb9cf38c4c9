package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"cloonapi/models"
	"cloonapi/services"
	"cloonapi/studio"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type StudioController struct {
	Manager    *studio.StudioManager
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *StudioController) StudioRoutes(g *echo.Group) {
	g.POST("/subject/upload", controller.SubjectUpload)
	g.POST("/subject", controller.GenerateSubject)
	g.GET("/status", controller.Status)
	g.POST("/tryon", controller.TryOn)
	g.POST("/compose", controller.Compose)
	g.POST("/vary", controller.Vary)
}

// SubjectUpload presigns a slot for the raw user photo the subject will be
// generated from. The photo key is echoed back so the client can pass it to
// the generate call once the upload finished.
func (controller *StudioController) SubjectUpload(c echo.Context) error {
	var req models.SubjectCreateIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if !services.IsAllowedImageName(req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, only image files are supported"})
	}

	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	photoKey := fmt.Sprintf("users/%v/subject/uploads/%v-%s", user.ID, time.Now().Unix(), req.FileName)
	uploadUrl, err := controller.AWSService.PresignLink(context.Background(), bucketName, photoKey)
	if err != nil {
		log.Printf("Unable to presign subject photo upload for user %v!, %s", user.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"message": "Error while preparing the upload, please try again",
		})
	}
	return c.JSON(http.StatusCreated, models.SubjectCreateOut{
		UploadUrl: uploadUrl,
		PhotoKey:  photoKey,
	})
}

// GenerateSubject turns the uploaded photo into the studio model image. It
// runs synchronously, a fresh subject resets the whole studio so there is
// no queue state worth protecting while it renders.
func (controller *StudioController) GenerateSubject(c echo.Context) error {
	var req models.SubjectGenerateIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	userStudio, err := controller.Manager.StudioFor(c.Request().Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Studio is not available, please try again"})
	}
	subject, err := userStudio.GenerateSubject(c.Request().Context(), req.PhotoKey)
	if err != nil {
		if services.IsBlocked(err) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"message": "Sorry, this photo can't be used, please try a different one"})
		}
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Could not create your model photo, please try again"})
	}
	controller.populateSubjectURL(c.Request().Context(), subject)
	return c.JSON(http.StatusCreated, subject)
}

func (controller *StudioController) Status(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	userStudio, err := controller.Manager.StudioFor(c.Request().Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Studio is not available, please try again"})
	}
	status := userStudio.Status()
	controller.populateSubjectURL(c.Request().Context(), status.Subject)
	status.Looks = populateLookURLs(c.Request().Context(), controller.URLCache, controller.AWSService, status.Looks)
	return c.JSON(http.StatusOK, status)
}

func (controller *StudioController) TryOn(c echo.Context) error {
	var req models.TryOnIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	garments, errResp := controller.loadGarments(c, user, []uint{req.ItemId})
	if errResp != nil {
		return errResp
	}
	return controller.enqueue(c, user, studio.NewTryOnTask(garments[0]))
}

func (controller *StudioController) Compose(c echo.Context) error {
	var req models.ComposeIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	garments, errResp := controller.loadGarments(c, user, req.ItemIds)
	if errResp != nil {
		return errResp
	}
	return controller.enqueue(c, user, studio.NewComposeTask(garments))
}

func (controller *StudioController) Vary(c echo.Context) error {
	var req models.VaryIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	return controller.enqueue(c, user, studio.NewVaryTask(req.LookId, req.Pose, req.Mood))
}

func (controller *StudioController) enqueue(c echo.Context, user models.UserAccount, task *studio.GenerationTask) error {
	userStudio, err := controller.Manager.StudioFor(c.Request().Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Studio is not available, please try again"})
	}
	pending := userStudio.Enqueue(task)
	return c.JSON(http.StatusAccepted, models.EnqueueOut{
		TaskId:  task.ID,
		Pending: pending,
	})
}

// loadGarments resolves wardrobe item ids to garment refs, preserving the
// order the client sent them in.
func (controller *StudioController) loadGarments(c echo.Context, user models.UserAccount, itemIds []uint) ([]models.GarmentRef, error) {
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	var items []models.WardrobeItem
	if err := db.Where("owner_id = ? AND id IN ?", user.ID, itemIds).Find(&items).Error; err != nil {
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to fetch wardrobe items"})
	}
	byId := make(map[uint]models.WardrobeItem, len(items))
	for _, item := range items {
		byId[item.ID] = item
	}
	garments := make([]models.GarmentRef, 0, len(itemIds))
	for _, id := range itemIds {
		item, found := byId[id]
		if !found {
			return nil, c.JSON(http.StatusNotFound, map[string]string{"message": fmt.Sprintf("Wardrobe item %v not found", id)})
		}
		if item.ImageKey == nil || *item.ImageKey == "" {
			return nil, c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("Wardrobe item %v has no photo yet", id)})
		}
		garments = append(garments, models.GarmentRef{
			ItemID:   UIntToStr(item.ID),
			Name:     item.Name,
			ImageKey: *item.ImageKey,
		})
	}
	return garments, nil
}

func (controller *StudioController) populateSubjectURL(ctx context.Context, subject *models.SubjectRecord) {
	if subject == nil || subject.ImageKey == "" {
		return
	}
	url, err := readURLWithFailsafe(ctx, controller.URLCache, controller.AWSService, subject.ImageKey)
	if err == nil {
		subject.ImageURL = url
	}
}

// readURLWithFailsafe tries the URL cache first and falls back to a direct
// R2 presign when the cache system itself fails.
func readURLWithFailsafe(ctx context.Context, cache services.URLCacheServiceProvider, aws services.AWSServiceProvider, objectKey string) (string, error) {
	url, err := cache.GetReadURL(ctx, objectKey)
	if err == nil {
		return url, nil
	}
	log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", objectKey, err)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("failure_type", "cache_system")
		scope.SetExtra("objectKey", objectKey)
		sentry.CaptureException(err)
	})
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	fallbackUrl, fallbackErr := aws.GetPresignedR2FileReadURL(ctx, bucketName, objectKey)
	if fallbackErr != nil {
		log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", objectKey, fallbackErr)
		sentry.CaptureException(fallbackErr)
		return "", fallbackErr
	}
	return fallbackUrl, nil
}

// populateLookURLs enriches looks with presigned read URLs concurrently.
func populateLookURLs(ctx context.Context, cache services.URLCacheServiceProvider, aws services.AWSServiceProvider, looks []models.LookRecord) []models.LookRecord {
	if len(looks) == 0 {
		return looks
	}
	var wg sync.WaitGroup
	for i := range looks {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			if looks[index].ImageKey == "" {
				return
			}
			url, err := readURLWithFailsafe(ctx, cache, aws, looks[index].ImageKey)
			if err == nil {
				looks[index].ImageURL = url
			}
		}(i)
	}
	wg.Wait()
	return looks
}
