package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"cloonapi/models"
	"cloonapi/services"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/api/idtoken"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func NewJSONAuthRequestCustomAuth(method string, target string, authorizationString string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", authorizationString)
	return req
}

func NewRefString(data string) *string {
	return &data
}

func FakeUser(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:      "OurName",
		Email:     "email@example.com",
		GoogleID:  "12232",
		Platform:  models.PlatformIOS,
		LastIp:    "123.122.122.122",
		Status:    "ACTIVE",
		AvatarURL: "pictureurl",
	}
	db.Create(&user)
	tokenDb := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      "android",
		Token:         "cX-UZ3zwQEiPt-2GJkG2gA:APA91bGqRflaGrJrnynhRwZ442HdgUjVcO7mWMFnx6IwAdJ9RRKopvSP4QU7hbvTmk1XAp8XGvtHZLvo5JmOPTVKBbGqqvhfbZWKlXA9csEjx1hgpNvrWepU-rqG1sxS8_WCF5cGZchf",
		Active:        true,
	}
	db.Save(&tokenDb)
	return user
}

func FakeUserV2(db *gorm.DB, userName string, email string) *models.UserAccount {
	if email == "" {
		email = "email@example.com"
	}
	user := &models.UserAccount{
		Name:      userName,
		Email:     email,
		GoogleID:  "12232",
		Platform:  models.PlatformIOS,
		LastIp:    "123.122.122.122",
		Status:    "ACTIVE",
		AvatarURL: "pictureurl",
	}
	db.Create(&user)
	return user
}

func FakeWardrobeItem(db *gorm.DB, ownerID uint, name string) *models.WardrobeItem {
	imageKey := fmt.Sprintf("wardrobe/%v/%s.png", ownerID, strings.ReplaceAll(name, " ", "-"))
	item := &models.WardrobeItem{
		Name:             name,
		OwnerID:          ownerID,
		ImageKey:         &imageKey,
		ProcessingStatus: "completed",
	}
	db.Create(&item)
	return item
}

type GoogleServiceMock struct{}

func (gsm GoogleServiceMock) ValidateIdToken(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {

	return &idtoken.Payload{Issuer: "Issue", Audience: "AAA", Expires: 119919191919, IssuedAt: 12312321321, Subject: "fake@example.com", Claims: map[string]interface{}{
		"email":   "fake@example.com",
		"picture": "pictureurl",
		"name":    "Fake Name",
		"sub":     "123googleid",
	}}, nil

}

func (gsm GoogleServiceMock) GetUserSubscriptionStatus(ctx context.Context, appUserId string) ([]byte, error) {
	data := `
	{
		"request_date": "2024-05-11T06:50:56Z",
		"subscriber": {
		  "entitlements": {
			"pro": {
			  "expires_date": "2029-05-12T22:28:12Z",
			  "grace_period_expires_date": null,
			  "product_identifier": "prostandard",
			  "product_plan_identifier": "monthly-autorenew",
			  "purchase_date": "2024-05-11T06:49:05Z"
			}
		  },
		  "first_seen": "2024-05-07T12:41:57Z",
		  "management_url": "https://play.google.com/store/account/subscriptions",
		  "non_subscriptions": {},
		  "other_purchases": {}
		}
	  }
	  `

	return []byte(data), nil
}

type AWSProviderMock struct {
	MockUrl string
}

func (awsService AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {

	return fmt.Sprintf("https://fakebucketurl.com/%s", fileName), nil
}

func (awsService AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return awsService.MockUrl, nil
}

func (awsService AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, 204, nil
}

type URLCacheMock struct {
	MockUrl string
	Err     error
}

func (m *URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.MockUrl != "" {
		return m.MockUrl, nil
	}
	return fmt.Sprintf("https://fakebucketurl.com/%s", objectKey), nil
}

// TinyPNG renders a one pixel png, enough for any code path that decodes
// what the mock produced.
func TinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Fatalf("Error encoding test png: %s", err)
	}
	return buf.Bytes()
}

// LLMProcessorMock stands in for the Gemini capability in tests.
type LLMProcessorMock struct {
	AnalysisJSON string
}

func (m LLMProcessorMock) GenerateImage(ctx context.Context, model services.LLMModelName, req services.SynthesisRequest) (*services.SynthesisResult, error) {
	return &services.SynthesisResult{
		Image:            services.ImageData{MIME: "image/png", Data: TinyPNG()},
		Model:            model.String(),
		InputTokenCount:  10,
		OutputTokenCount: 13,
		TotalTokenCount:  23,
	}, nil
}

func (m LLMProcessorMock) AnalyzeImage(ctx context.Context, img services.ImageData, system string, prompt string, schema *genai.Schema) (string, error) {
	if m.AnalysisJSON != "" {
		return m.AnalysisJSON, nil
	}
	return `{
		"item_detected": true,
		"category": "top",
		"sub_category": "t-shirt",
		"main_color": "white",
		"attributes": ["cotton", "crew neck"],
		"search_tags": ["casual", "basic"],
		"dense_generation_prompt": "A plain white cotton crew neck t-shirt with short sleeves."
	}`, nil
}
