package controllers

import (
	"errors"
	"net/http"

	"cloonapi/models"
	"cloonapi/services"
	"cloonapi/studio"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
)

type LooksController struct {
	Manager    *studio.StudioManager
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *LooksController) LookRoutes(g *echo.Group) {
	g.GET("/list", controller.ListLooks)
	g.GET("/:lookId/style", controller.StyleScore)
	g.DELETE("/:lookId", controller.DeleteLook)
}

// StyleScore rates a finished look through the analysis model.
func (controller *LooksController) StyleScore(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	lookId := c.Param("lookId")
	userStudio, err := controller.Manager.StudioFor(c.Request().Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Studio is not available, please try again"})
	}
	score, err := userStudio.ScoreLook(c.Request().Context(), lookId)
	if err != nil {
		if errors.Is(err, services.ErrLookNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Look not found"})
		}
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Could not rate this look, please try again"})
	}
	return c.JSON(http.StatusOK, models.StyleScoreOut{
		Score:       score.Score,
		Explanation: score.Explanation,
	})
}

func (controller *LooksController) ListLooks(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	userStudio, err := controller.Manager.StudioFor(c.Request().Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Studio is not available, please try again"})
	}
	looks := populateLookURLs(c.Request().Context(), controller.URLCache, controller.AWSService, userStudio.Looks())
	return c.JSON(http.StatusOK, echo.Map{
		"looks": looks,
	})
}

func (controller *LooksController) DeleteLook(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	lookId := c.Param("lookId")
	if lookId == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Look id is required"})
	}
	userStudio, err := controller.Manager.StudioFor(c.Request().Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Studio is not available, please try again"})
	}
	if err := userStudio.DeleteLook(c.Request().Context(), lookId); err != nil {
		if errors.Is(err, services.ErrLookNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Look not found"})
		}
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to delete look, please try again"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "deleted",
	})
}
