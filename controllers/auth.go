package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"cloonapi/models"
	"cloonapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type AuthController struct {
	Google     services.GoogleServiceProvider
	FirebaseApp *firebase.App
	AWSService services.AWSServiceProvider
}

func (m *AuthController) ProfileRoutes(g *echo.Group) {
	g.POST("/google", func(c echo.Context) (err error) {
		googleCreds := new(models.GoogleAuthSignIn)
		if err := c.Bind(googleCreds); err != nil {
			return err
		}
		if !models.ValidatePlatformRaw(googleCreds.Platform) {
			return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Please provide proper platform parameter"})
		}
		if err = c.Validate(googleCreds); err != nil {
			return err
		}

		payload, err := m.Google.ValidateIdToken(context.Background(), googleCreds.IdToken, os.Getenv("GOOGLE_CLIENT_ID"))
		if err != nil {
			fmt.Println(err)
			return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Couldn't verify credentials"})
		}
		sub, ok := payload.Claims["sub"]
		if !ok {
			sentry.CaptureMessage(fmt.Sprintf("Error when fetching user data %s", payload.Claims))
			return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Couldn't verify credentials"})
		}
		googleId := sub.(string)

		googleEmail, ok := payload.Claims["email"]
		if !ok {
			sentry.CaptureMessage(fmt.Sprintf("Error when fetching user data email %s", payload.Claims))
			return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Couldn't verify credentials"})
		}
		pictureUrl, _ := payload.Claims["picture"].(string)
		googleName, _ := payload.Claims["name"].(string)

		db := c.Get("__db").(*gorm.DB)
		var user *models.UserAccount
		r := db.Where("google_id = ?", googleId).Limit(1).Find(&user)
		if r.Error != nil {
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{"message": "Internal server error"})
		}
		isNew := r.RowsAffected == 0
		if isNew {
			// fall back to email match before creating a fresh account
			r = db.Where("email = ?", googleEmail).Limit(1).Find(&user)
			if r.RowsAffected > 0 {
				user.GoogleID = googleId
				user.AvatarURL = pictureUrl
				user.Name = googleName
				user.LastIp = c.RealIP()
				user.Platform = models.ScanPlatform(googleCreds.Platform)
				db.Save(&user)
				isNew = false
			} else {
				user = &models.UserAccount{
					Name:      googleName,
					Email:     googleEmail.(string),
					GoogleID:  googleId,
					Platform:  models.ScanPlatform(googleCreds.Platform),
					LastIp:    c.RealIP(),
					Status:    "ACTIVE",
					AvatarURL: pictureUrl,
				}
				if err := db.Create(&user).Error; err != nil {
					sentry.CaptureException(err)
					return c.JSON(http.StatusInternalServerError, map[string]interface{}{"message": "Internal server error"})
				}
				fmt.Println("User created via google: ", googleEmail, googleId)
			}
		}
		if user.Banned {
			return echo.ErrForbidden
		}
		refreshToken, err := GenerateRefreshToken(fmt.Sprint(user.ID))
		if err != nil {
			fmt.Println(err)
			return echo.ErrInternalServerError
		}
		return c.JSON(http.StatusOK, models.GoogleSignInOut{
			Email:        user.Email,
			Id:           user.ID,
			New:          isNew,
			Avatar:       user.AvatarURL,
			AccessToken:  GenerateUserToken(fmt.Sprint(user.ID), c, 72),
			RefreshToken: refreshToken,
		})
	})

	g.POST("/refresh-token", func(c echo.Context) error {
		type tokenReqBody struct {
			RefreshToken string `json:"refresh_token"`
		}
		tokenReq := new(tokenReqBody)
		if err := c.Bind(&tokenReq); err != nil {
			fmt.Println(err)
			return echo.ErrBadRequest
		}
		if tokenReq.RefreshToken == "" {
			fmt.Println("Refresh token is empty")
			return echo.ErrBadRequest
		}
		token, err := jwt.Parse(tokenReq.RefreshToken, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(os.Getenv("JWT_SECRET")), nil
		})
		if err != nil {
			fmt.Println(err)
			return echo.ErrBadRequest
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return echo.ErrBadRequest
		}
		db := c.Get("__db").(*gorm.DB)
		data, okConvert := claims["sub"].(string)
		if !okConvert {
			fmt.Println("Cannot convert sub to string!")
			return echo.ErrInternalServerError
		}
		userId, err := strconv.Atoi(data)
		if err != nil {
			fmt.Println("Error parsing sub of the user!!", err)
			return echo.ErrInternalServerError
		}
		if userId < 1 {
			fmt.Println("Refresh: sub is:", userId)
			return echo.ErrBadRequest
		}
		var user *models.UserAccount
		result := db.First(&user, userId)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			fmt.Println("Requested user not found!", userId)
			return echo.ErrForbidden
		}
		if result.Error != nil {
			fmt.Println("Error getting user while refreshing token", userId)
			return echo.ErrInternalServerError
		}
		if user.Banned {
			return echo.ErrUnauthorized
		}
		rt, err := GenerateRefreshToken(fmt.Sprint(userId))
		if err != nil {
			fmt.Println("Error refreshing token ", err)
			return echo.ErrInternalServerError
		}
		return c.JSON(http.StatusOK, echo.Map{
			"access_token":  GenerateUserToken(fmt.Sprint(userId), c, 72),
			"refresh_token": rt,
		})
	})

	g.GET("/me", func(c echo.Context) error {
		user := c.Get("currentUser").(models.UserAccount)
		db := c.Get("__db").(*gorm.DB)

		var subject models.Subject
		r := db.Where("owner_id = ?", user.ID).Order("created_at desc").Limit(1).Find(&subject)
		if r.Error != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Something went wrong"})
		}
		var subjectUrl *string
		if r.RowsAffected > 0 {
			bucketName := services.GetEnv("R2_BUCKET_NAME", "")
			presigned, err := m.AWSService.GetPresignedR2FileReadURL(context.Background(), bucketName, subject.ImageKey)
			if err != nil {
				log.Printf("CRITICAL: subject image could not presign for key '%s': %v", subject.ImageKey, err)
				sentry.CaptureException(err)
				// subjectUrl stays nil, the rest of the profile still loads
			} else {
				subjectUrl = &presigned
			}
		}
		return c.JSON(http.StatusOK, models.UserMeInfoOut{
			Id:         user.ID,
			Name:       user.Name,
			Email:      user.Email,
			AvatarURL:  user.AvatarURL,
			SubjectSet: r.RowsAffected > 0,
			SubjectURL: subjectUrl,
		})
	}, echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)

	g.POST("/settings", func(c echo.Context) error {
		user := c.Get("currentUser").(models.UserAccount)
		db := c.Get("__db").(*gorm.DB)
		var settingsIn = new(models.UserSettingsIn)
		if err := c.Bind(settingsIn); err != nil {
			return err
		}
		user.ReceiveNotifications = settingsIn.ReceiveNotifications
		db.Save(&user)
		return c.JSON(http.StatusOK, settingsIn)
	}, echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)

	g.POST("/register-push", func(c echo.Context) error {
		user := c.Get("currentUser").(models.UserAccount)
		db := c.Get("__db").(*gorm.DB)
		var tokenRequest = new(models.UserPushIn)
		if err := c.Bind(tokenRequest); err != nil {
			return err
		}
		if !models.ValidatePlatformRaw(tokenRequest.Platform) {
			return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Please provide proper platform parameter"})
		}
		var pushData = models.UserPushToken{
			Platform:      models.ScanPlatform(tokenRequest.Platform),
			Token:         tokenRequest.Token,
			UserAccountID: user.ID,
			Active:        true,
		}
		// same token/device can sign in to diff accs and still receive pushes
		result := db.Where("token = ? and user_account_id = ?", tokenRequest.Token, user.ID).FirstOrCreate(&pushData)
		if result.Error != nil {
			log.Println(result.Error)
			return echo.ErrInternalServerError
		}
		if result.RowsAffected >= 1 {
			fmt.Println("Token created for user ", user.ID, "Platform: ", tokenRequest.Platform)
		}
		return c.JSON(http.StatusOK, echo.Map{
			"message": "registered",
			"push_id": pushData.ID,
		})
	}, echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)

	g.POST("/delete-push", func(c echo.Context) error {
		user := c.Get("currentUser").(models.UserAccount)
		db := c.Get("__db").(*gorm.DB)
		var tokenRequest = new(models.UserPushIn)
		if err := c.Bind(tokenRequest); err != nil {
			return err
		}
		if !models.ValidatePlatformRaw(tokenRequest.Platform) {
			return c.JSON(http.StatusForbidden, map[string]interface{}{"message": "Please provide proper platform parameter"})
		}
		result := db.Where("token = ? and user_account_id = ? and platform = ?", tokenRequest.Token, user.ID, tokenRequest.Platform).Delete(&models.UserPushToken{})
		if result.Error != nil {
			log.Println(result.Error)
			return echo.ErrInternalServerError
		}
		return c.JSON(http.StatusOK, echo.Map{
			"message": "deleted",
			"deleted": result.RowsAffected > 0,
		})
	}, echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)

	g.POST("/delete-account", func(c echo.Context) error {
		user := c.Get("currentUser").(models.UserAccount)
		db := c.Get("__db").(*gorm.DB)
		now := time.Now()
		user.ConfirmedDeleteDate = &now
		db.Save(user)
		return c.JSON(http.StatusOK, echo.Map{
			"message": "scheduled",
		})
	}, echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
}
