package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

// GarmentTier decides how an item travels into a multi-item composition:
// primary items go in as images, secondary items collapse into a short text
// description.
type GarmentTier string

const (
	TierPrimary   GarmentTier = "primary"
	TierSecondary GarmentTier = "secondary"
)

// GarmentInput is one wardrobe item handed to classification or composition.
type GarmentInput struct {
	ID    string
	Name  string
	Image ImageData
}

type ClassifiedItem struct {
	Source      GarmentInput
	Tier        GarmentTier
	Description string
}

type ClassifierProvider interface {
	Classify(ctx context.Context, item GarmentInput) ClassifiedItem
}

type ItemClassifier struct {
	Processor LLMImageProcessor
}

var classifySchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"category": {
			Type: "string",
			Enum: []string{"Major", "Minor"},
		},
		"description": {
			Type: "string",
		},
	},
	Required: []string{"category", "description"},
}

const classifyPrompt = `Classify this clothing item. "Major" items define the outfit silhouette and must be rendered from their exact pixels: tops, bottoms, dresses, outerwear, full-body garments, statement shoes. "Minor" items are small accents that can be described in words: jewelry, belts, hats, socks, small bags, sunglasses. Also return a one-sentence visual description of the item (color, material, cut) usable to re-render it from text alone.`

type classifyResult struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Classify never fails: any analysis error degrades to the primary tier with
// an empty description, which only costs prompt quality downstream.
func (c *ItemClassifier) Classify(ctx context.Context, item GarmentInput) ClassifiedItem {
	fallback := ClassifiedItem{Source: item, Tier: TierPrimary, Description: ""}

	raw, err := c.Processor.AnalyzeImage(ctx, item.Image, "", classifyPrompt, classifySchema)
	if err != nil {
		fmt.Printf("[Classify] analysis failed for item %s, defaulting to primary: %v\n", item.ID, err)
		sentry.CaptureException(err)
		return fallback
	}
	var parsed classifyResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fmt.Printf("[Classify] bad response for item %s, defaulting to primary: %v\n", item.ID, err)
		sentry.CaptureException(err)
		return fallback
	}

	tier := TierPrimary
	if parsed.Category == "Minor" {
		tier = TierSecondary
	}
	return ClassifiedItem{Source: item, Tier: tier, Description: parsed.Description}
}
