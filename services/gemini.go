package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// LLMModelName is the Gemini model to call.
type LLMModelName int32

const (
	// Pro3Image is the primary synthesis model, slow and strong.
	Pro3Image LLMModelName = iota
	// Flash25Image is the fallback synthesis model.
	Flash25Image
	// Flash25 is the vision model used for wardrobe and identity analysis.
	Flash25
)

func (t LLMModelName) String() string {
	switch t {
	case Pro3Image:
		return "gemini-3-pro-image-preview"
	case Flash25Image:
		return "gemini-2.5-flash-image"
	case Flash25:
		return "gemini-2.5-flash"
	default:
		return "gemini-2.5-flash"
	}
}

func floatPointer(f float32) *float32 {
	return &f
}

func Int64Pointer(i int64) *int64 {
	return &i
}

func Int32Pointer(i int32) *int32 {
	return &i
}

// LLMImageProcessor is the Gemini surface the rest of the app depends on:
// image-out generation for the compositor and JSON-out analysis for the
// classifier and the wardrobe task.
type LLMImageProcessor interface {
	GenerateImage(ctx context.Context, model LLMModelName, req SynthesisRequest) (*SynthesisResult, error)
	AnalyzeImage(ctx context.Context, image ImageData, system string, prompt string, schema *genai.Schema) (string, error)
}

type GoogleImageProcessor struct{}

func newGenAIClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GOOGLE_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
}

func requestParts(req SynthesisRequest) []*genai.Part {
	var parts []*genai.Part
	for _, p := range req.Parts {
		if p.Image != nil {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: p.Image.MIME,
					Data:     p.Image.Data,
				},
			})
			continue
		}
		parts = append(parts, &genai.Part{Text: p.Text})
	}
	return parts
}

// FirstInlineImage pulls the first image out of a response, surfacing safety
// blocks as BlockedError.
func FirstInlineImage(result *genai.GenerateContentResponse) (*ImageData, error) {
	if result == nil {
		return nil, fmt.Errorf("empty response")
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		fmt.Println("[Synthesis] prompt blocked:", result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage)
		reason := result.PromptFeedback.BlockReasonMessage
		if reason == "" {
			reason = string(result.PromptFeedback.BlockReason)
		}
		return nil, &BlockedError{Reason: reason}
	}
	for _, cand := range result.Candidates {
		for _, rating := range cand.SafetyRatings {
			if rating.Blocked {
				return nil, &BlockedError{Reason: string(rating.Category)}
			}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			inlineData := part.InlineData
			if inlineData == nil {
				continue
			}
			if strings.HasPrefix(inlineData.MIMEType, "image/") && len(inlineData.Data) > 0 {
				return &ImageData{MIME: inlineData.MIMEType, Data: inlineData.Data}, nil
			}
		}
	}
	return nil, fmt.Errorf("no image in model response: %s", result.Text())
}

func (GoogleImageProcessor) GenerateImage(ctx context.Context, model LLMModelName, req SynthesisRequest) (*SynthesisResult, error) {
	client, err := newGenAIClient(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		CandidateCount:  1,
		MaxOutputTokens: 50000,
	}
	if req.Temperature != nil {
		config.Temperature = req.Temperature
	}
	system := req.System
	if req.AspectRatio != "" {
		system = system + " Aspect ratio " + req.AspectRatio + " portrait size."
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, model.String(), []*genai.Content{{Parts: requestParts(req)}}, config)
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var inputTokenCount, outputTokenCount, totalTokenCount int32
	if result.UsageMetadata != nil {
		inputTokenCount = result.UsageMetadata.PromptTokenCount
		outputTokenCount = result.UsageMetadata.CandidatesTokenCount
		totalTokenCount = result.UsageMetadata.TotalTokenCount
		fmt.Println("Input token count:", inputTokenCount)
		fmt.Println("Output token count:", outputTokenCount)
		fmt.Println("Total token count:", totalTokenCount)
	} else {
		fmt.Println("UsageMetadata is nil!")
	}

	image, err := FirstInlineImage(result)
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{
		Image:            *image,
		Model:            model.String(),
		InputTokenCount:  inputTokenCount,
		OutputTokenCount: outputTokenCount,
		TotalTokenCount:  totalTokenCount,
	}, nil
}

func (GoogleImageProcessor) AnalyzeImage(ctx context.Context, image ImageData, system string, prompt string, schema *genai.Schema) (string, error) {
	client, err := newGenAIClient(ctx)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: image.MIME, Data: image.Data}},
		{Text: prompt},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  50000,
		Temperature:      floatPointer(0.8),
		ResponseSchema:   schema,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, Flash25.String(), []*genai.Content{{Parts: parts}}, config)
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return "", fmt.Errorf("analyze image: %w", err)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		fmt.Println("[Analyze] prompt blocked:", result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage)
		return "", &BlockedError{Reason: result.PromptFeedback.BlockReasonMessage}
	}
	return result.Text(), nil
}
