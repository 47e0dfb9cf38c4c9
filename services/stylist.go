package services

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// StyleScore is a stylist rating of a finished look.
type StyleScore struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

var styleSchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"score": {
			Type: "number",
		},
		"explanation": {
			Type: "string",
		},
	},
	Required: []string{"score", "explanation"},
}

const stylePrompt = `Analyze the outfit. Rate its style 1-10. Provide a brief stylist explanation (max 50 words).`

// ScoreOutfit rates a look image through the analysis model. Unlike
// classification this surfaces errors, a missing score is worth a retry from
// the user's side.
func (c *GenerationCompositor) ScoreOutfit(ctx context.Context, look ImageData) (*StyleScore, error) {
	raw, err := c.Analyzer.AnalyzeImage(ctx, look, "", stylePrompt, styleSchema)
	if err != nil {
		return nil, err
	}
	var parsed StyleScore
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("bad style analysis response: %w", err)
	}
	return &parsed, nil
}
