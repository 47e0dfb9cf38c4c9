package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"cloonapi/models"
	"cloonapi/services"
	"cloonapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type WardrobeController struct {
	AWSService  services.AWSServiceProvider
	FirebaseApp *firebase.App
	URLCache    services.URLCacheServiceProvider
}

func (controller *WardrobeController) WardrobeRoutes(g *echo.Group) {
	g.POST("/create", controller.CreateItem)
	g.POST("/uploaded", controller.ItemUploaded)
	g.GET("/list", controller.ListItems)
	g.POST("/delete", controller.DeleteItems)
}

func (controller *WardrobeController) CreateItem(c echo.Context) error {
	var req models.WardrobeItemCreateIn
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
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	if !services.IsAllowedImageName(req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, only image files are supported"})
	}

	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("wardrobe/%v/%s", user.ID, req.FileName)
	uploadUrl, presignErr := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	if presignErr != nil {
		log.Printf("Unable to presign upload for %s!, %s", req.Name, presignErr)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"message": "Error while creating wardrobe item, please try again",
		})
	}

	item := models.WardrobeItem{
		Name:             req.Name,
		OwnerID:          user.ID,
		ImageKey:         &safeFileName,
		ProcessingStatus: "idle",
	}
	if err := db.Create(&item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to save wardrobe item, please try again"})
	}
	fmt.Printf("[Item: %v] created for user %v\n", item.ID, user.ID)

	return c.JSON(http.StatusCreated, models.WardrobeItemCreateOut{
		Item:      item,
		UploadUrl: uploadUrl,
	})
}

// ItemUploaded is called by the client once the presigned upload finished,
// it kicks off the background analysis of the photo.
func (controller *WardrobeController) ItemUploaded(c echo.Context) error {
	var req models.WardrobeItemUploadedIn
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
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	var item models.WardrobeItem
	r := db.Where("id = ? AND owner_id = ?", req.ItemId, user.ID).Limit(1).Find(&item)
	if r.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to fetch wardrobe item"})
	}
	if r.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Wardrobe item not found"})
	}

	item.ProcessingStatus = "analyzing"
	if err := db.Save(&item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to update item status, please try again"})
	}
	task, err := tasks.NewWardrobeAnalysisTask(item.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process item, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("wardrobe"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process item, please try again"})
	}
	fmt.Println("[Queue] Wardrobe analysis task submitted, Item ID: ", item.ID, " Task ID: ", info.ID)

	return c.JSON(http.StatusOK, echo.Map{
		"message": "processing",
		"item_id": item.ID,
	})
}

// populatePresignedItemImages enriches wardrobe items with presigned read URLs
// concurrently, with a manual R2 failsafe for when the cache system itself fails.
func (controller *WardrobeController) populatePresignedItemImages(ctx context.Context, items []models.WardrobeItem) []models.WardrobeItemOut {
	if len(items) == 0 {
		return []models.WardrobeItemOut{}
	}

	var wg sync.WaitGroup
	out := make([]models.WardrobeItemOut, len(items))
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	for i, wardrobeItem := range items {
		wg.Add(1)
		go func(index int, item models.WardrobeItem) {
			defer wg.Done()

			var imageUrl *string
			if item.ImageKey != nil && *item.ImageKey != "" {
				objectKey := *item.ImageKey

				url, err := controller.URLCache.GetReadURL(ctx, objectKey)
				if err == nil {
					imageUrl = &url
				} else {
					log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", objectKey, err)
					sentry.WithScope(func(scope *sentry.Scope) {
						scope.SetTag("failure_type", "cache_system")
						scope.SetExtra("objectKey", objectKey)
						sentry.CaptureException(err)
					})
					fallbackUrl, fallbackErr := controller.AWSService.GetPresignedR2FileReadURL(ctx, bucketName, objectKey)
					if fallbackErr != nil {
						log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", objectKey, fallbackErr)
						sentry.CaptureException(fallbackErr)
						// imageUrl stays nil, the item still lists
					} else {
						imageUrl = &fallbackUrl
					}
				}
			}
			out[index] = models.WardrobeItemOut{
				WardrobeItem: item,
				ImageURL:     imageUrl,
			}
		}(i, wardrobeItem)
	}

	wg.Wait()
	return out
}

func (controller *WardrobeController) ListItems(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var items []models.WardrobeItem
	if err := db.Where("owner_id = ?", user.ID).Order("created_at desc").Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch wardrobe"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": controller.populatePresignedItemImages(c.Request().Context(), items),
	})
}

func (controller *WardrobeController) DeleteItems(c echo.Context) error {
	var req models.WardrobeItemsDeleteIn
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
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	// generated looks keep their own denormalized garment copies, so deleting
	// wardrobe rows never touches look history
	result := db.Where("owner_id = ? AND id IN ?", user.ID, req.ItemIds).Delete(&models.WardrobeItem{})
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to delete wardrobe items"})
	}
	fmt.Printf("[User %v] deleted %v wardrobe items\n", user.ID, result.RowsAffected)
	return c.JSON(http.StatusOK, echo.Map{
		"deleted": result.RowsAffected,
	})
}
