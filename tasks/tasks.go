package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cloonapi/models"
	"cloonapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/lib/pq"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

type WardrobeAnalysisPayload struct {
	ItemID uint `json:"item_id"`
}

// Client initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

// NewWardrobeAnalysisTask enqueues a wardrobe item for vision analysis
func NewWardrobeAnalysisTask(itemID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(WardrobeAnalysisPayload{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("wardrobe:analyze", payload), nil
}

var wardrobeSchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"item_detected": {Type: "boolean"},
		"category":      {Type: "string"},
		"sub_category":  {Type: "string"},
		"main_color":    {Type: "string"},
		"attributes": {
			Type:  "array",
			Items: &genai.Schema{Type: "string"},
		},
		"search_tags": {
			Type:  "array",
			Items: &genai.Schema{Type: "string"},
		},
		"dense_generation_prompt": {Type: "string"},
	},
	Required: []string{"item_detected", "category", "sub_category", "main_color", "attributes", "search_tags", "dense_generation_prompt"},
}

const wardrobePrompt = `Analyze this wardrobe item photo. Return whether a single clothing item is clearly detected, its category (top, bottom, dress, outerwear, shoes, accessory), a precise sub_category (like "denim jacket" or "pleated midi skirt"), its main_color, a list of notable visual attributes (material, pattern, fit, details), short lowercase search_tags, and a dense_generation_prompt: one paragraph describing the item precisely enough to re-render it from text alone.`

type wardrobeAnalysis struct {
	ItemDetected          bool     `json:"item_detected"`
	Category              string   `json:"category"`
	SubCategory           string   `json:"sub_category"`
	MainColor             string   `json:"main_color"`
	Attributes            []string `json:"attributes"`
	SearchTags            []string `json:"search_tags"`
	DenseGenerationPrompt string   `json:"dense_generation_prompt"`
}

func getImageForItem(awsService services.AWSServiceProvider, item models.WardrobeItem) (services.ImageData, error) {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	if item.ImageKey == nil {
		return services.ImageData{}, fmt.Errorf("[Item: %v] image key is nil", item.ID)
	}
	fmt.Printf("[Item: %v] Request presigned download url..\n", item.ID)
	fileUrl, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, *item.ImageKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on getting presigned URL for %s", item.ID, *item.ImageKey))
		return services.ImageData{}, err
	}
	fmt.Printf("Downloading... %s\n", fileUrl)
	fileBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on downloading %s: %v", item.ID, *item.ImageKey, err))
		return services.ImageData{}, err
	}
	return services.ImageData{MIME: services.ImageMIMEFromName(*item.ImageKey), Data: fileBytes}, nil
}

// HandleWardrobeAnalysisTask runs the vision model over a freshly uploaded
// wardrobe item and fills its catalog fields.
func HandleWardrobeAnalysisTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, processor services.LLMImageProcessor,
	awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	google_key := os.Getenv("GOOGLE_API_KEY")
	if google_key == "" {
		sentry.CaptureException(fmt.Errorf("[QUEUE] %s Google API key is not set", string(t.Payload())))
		return fmt.Errorf("[QUEUE] %s Google API key is not set", string(t.Payload()))
	}
	var payload WardrobeAnalysisPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Item: %v] Start Analysis\n", payload.ItemID)
	var item models.WardrobeItem
	res := db.First(&item, payload.ItemID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving wardrobe item for analysis %v", payload.ItemID))
		return res.Error
	}

	image, err := getImageForItem(awsService, item)
	if err != nil {
		saveItemProcessingFail(db, item, "Failed to read the item photo, please re-upload it", false)
		return err
	}
	fmt.Printf("[Item: %v] Downloaded image size: %d bytes\n", payload.ItemID, len(image.Data))

	raw, err := processor.AnalyzeImage(ctx, image, "", wardrobePrompt, wardrobeSchema)
	if err != nil {
		if strings.Contains(err.Error(), "content violation") {
			saveItemProcessingFail(db, item, "Sorry, this photo contains content we cannot process", false)
			sentry.CaptureException(fmt.Errorf("[Item: %v] Content violation on analysis: %v", payload.ItemID, err))
			return nil
		}
		saveItemProcessingFail(db, item, "Failed to analyze the item, please try again", true)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on analysis: %v", payload.ItemID, err))
		return err
	}

	var parsed wardrobeAnalysis
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fmt.Printf("[Item: %v] Error on parsing analysis json %s\n", payload.ItemID, raw)
		saveItemProcessingFail(db, item, "Failed to analyze the item, please try again", true)
		sentry.CaptureException(fmt.Errorf("[Item: %v] Error on parsing analysis json %s", payload.ItemID, raw))
		return err
	}

	item.ItemDetected = parsed.ItemDetected
	item.Category = services.StrPointer(parsed.Category)
	item.SubCategory = services.StrPointer(parsed.SubCategory)
	item.MainColor = services.StrPointer(parsed.MainColor)
	item.Attributes = pq.StringArray(parsed.Attributes)
	item.SearchTags = pq.StringArray(parsed.SearchTags)
	item.DensePrompt = services.StrPointer(parsed.DenseGenerationPrompt)
	item.ProcessingStatus = "completed"
	item.ProcessErrorMessage = nil
	if !parsed.ItemDetected {
		item.ProcessingStatus = "failed"
		item.ProcessErrorMessage = services.StrPointer("No clothing item detected in the photo")
	}

	tx := db.Save(&item)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on saving wardrobe item %v", payload.ItemID))
		return tx.Error
	}
	fmt.Printf("[Item: %v] Analysis finished succesfully..\n", payload.ItemID)
	if parsed.ItemDetected {
		services.SendNotification(fbApp, db, item.OwnerID, "Item added to your wardrobe",
			fmt.Sprintf("%s is ready for try-on", item.Name),
			map[string]string{"item_id": fmt.Sprintf("%d", item.ID), "type": "wardrobe_analyzed"})
	}
	return nil
}

func saveItemProcessingFail(db *gorm.DB, item models.WardrobeItem, msg string, shouldRetry bool) error {
	item.ProcessRetryTimes = item.ProcessRetryTimes + 1
	item.ProcessErrorMessage = &msg
	if !shouldRetry || item.ProcessRetryTimes >= 3 {
		item.ProcessingStatus = "failed"
	}
	tx := db.Save(&item)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Item %v] Error on saving item for failed status", item.ID))
		return tx.Error
	}
	return nil
}
