package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cloonapi/models"
	"cloonapi/services"
	"cloonapi/telegram"

	firebase "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type WebhooksController struct {
	Google      services.GoogleServiceProvider
	FirebaseApp *firebase.App
}

func (wc *WebhooksController) SetupRoutes(g *echo.Group) {

	g.POST("/rc-subscription-webhooks", func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Bearer "+os.Getenv("RC_WEBHOOK_TOKEN") {
			fmt.Println("Invalid Authorization header for webhook!")
			fmt.Println("[Malicious] IP: ", c.RealIP(), "User agent: ", c.Request().Header.Get("User-Agent"))
			return echo.ErrUnauthorized
		}

		db, ok := c.Get("__db").(*gorm.DB)
		if !ok {
			fmt.Println("error getting DB for subscription!")
			return echo.ErrInternalServerError
		}

		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			fmt.Println(err)
			return echo.ErrInternalServerError
		}
		var eventData map[string]interface{}
		fmt.Println("Event: ", string(b))
		if err := json.NewDecoder(bytes.NewReader(b)).Decode(&eventData); err != nil {
			fmt.Println("error parsing event json!")
			return echo.ErrInternalServerError
		}

		event, ok := eventData["event"].(map[string]interface{})
		if !ok {
			fmt.Println("Cannot parse event!")
			return echo.ErrInternalServerError
		}
		eventType, _ := event["type"].(string)
		if eventType == "TRANSFER" {
			fmt.Println("Transfer skip..")
			return c.JSON(http.StatusOK, echo.Map{
				"message": "OK TRANSFER",
			})
		}
		appUserId, ok := event["app_user_id"].(string)
		if !ok {
			fmt.Println("Cannot parse app user id!")
			return echo.ErrInternalServerError
		}
		if strings.Contains(appUserId, "$RCAnonymousID") {
			appUserId, _ = event["original_app_user_id"].(string)
			if strings.Contains(appUserId, "$RCAnonymousID") {
				fmt.Println("Anonymous ID couldnt verify the user!", appUserId)
				telegram.SendOpsMessage(fmt.Sprintf("Unknown user %s event: %s", appUserId, eventType))
				return c.JSON(http.StatusOK, echo.Map{
					"message": "Error unknown user",
				})
			}
		}

		userId, err := strconv.ParseUint(appUserId, 10, 32)
		if err != nil {
			fmt.Println("Cannot parse user id to update sub!", appUserId)
			return echo.ErrInternalServerError
		}
		var user models.UserAccount
		if result := db.First(&user, userId); result.Error != nil {
			fmt.Println("Cannot get user to update sub!", appUserId)
			return echo.ErrInternalServerError
		}

		setPlan := func(plan string, expires *time.Time) {
			user.Subscription = &plan
			user.ExpirationDate = expires
			db.Save(&user)
		}

		if eventType == "EXPIRATION" {
			reason, _ := event["expiration_reason"]
			setPlan(models.PlanFree, nil)
			telegram.SendOpsMessage(fmt.Sprintf("🛑 %s %s reason %v", user.Name, eventType, reason))
			services.SendNotification(wc.FirebaseApp, db, user.ID, "Subscription expired", "Oh, no! You will not be able to generate new looks. Subscribe again to keep styling! 🔥", nil)
			return c.JSON(http.StatusOK, echo.Map{
				"message": "expire ok",
			})
		}

		if eventType == "CANCELLATION" {
			reason, _ := event["cancel_reason"]
			telegram.SendOpsMessage(fmt.Sprintf("🛑 %s %s reason %v", user.Name, eventType, reason))
			if reason == "BILLING_ERROR" {
				services.SendNotification(wc.FirebaseApp, db, user.ID, "Payment error", "Please update your payment to keep your subscription active! 😮", nil)
			}
			return c.JSON(http.StatusOK, echo.Map{
				"message": "cancel ok",
			})
		}

		// RC can lag behind the event, ask the API for the settled state
		time.Sleep(time.Second * 4)
		b, err = wc.Google.GetUserSubscriptionStatus(context.Background(), appUserId)
		if err != nil {
			fmt.Println(err)
			return echo.ErrInternalServerError
		}
		var subData map[string]interface{}
		if err := json.NewDecoder(bytes.NewReader(b)).Decode(&subData); err != nil {
			fmt.Println("Error decoding user subscription status", err)
			return echo.ErrInternalServerError
		}
		subscriber, ok := subData["subscriber"].(map[string]interface{})
		if !ok {
			fmt.Println("Error reading sub status of user ", appUserId)
			return echo.ErrInternalServerError
		}
		entitlements, ok := subscriber["entitlements"].(map[string]interface{})
		if !ok {
			fmt.Println("Error reading sub status of user ", appUserId)
			return echo.ErrInternalServerError
		}

		if proEntitlement, proOk := entitlements["pro"].(map[string]interface{}); proOk {
			expires, ok := proEntitlement["expires_date"].(string)
			if !ok {
				fmt.Println("Error parsing Pro expiration date")
				return echo.ErrInternalServerError
			}
			t, err := time.Parse("2006-01-02T15:04:05Z", expires)
			if err != nil {
				fmt.Println(err)
			}
			setPlan(models.PlanPro, &t)
			if t.After(time.Now()) {
				if eventType == "INITIAL_PURCHASE" {
					telegram.SendOpsMessage(fmt.Sprintf("🎉⚡️🔥 %s subscription update: %s", user.Name, models.PlanPro))
				}
				if periodType, ok := event["period_type"].(string); ok && periodType == "PROMOTIONAL" {
					services.SendNotification(wc.FirebaseApp, db, user.ID, "Promo activated 🎉", fmt.Sprintf("Your Pro subscription is now active until %s", t.Format("2006-01-02")), nil)
				}
				return c.JSON(http.StatusOK, echo.Map{
					"message": "Pro is active",
				})
			}
		}

		fmt.Println("No active sub/entitlements found for user, updating backend sub ", appUserId)
		setPlan(models.PlanFree, nil)
		telegram.SendOpsMessage(fmt.Sprintf("⚠️ %s subscription updated: %s %s", user.Name, models.PlanFree, eventType))
		return c.JSON(http.StatusOK, echo.Map{
			"message": "OK",
		})
	})
}
