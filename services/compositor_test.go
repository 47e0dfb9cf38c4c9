package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type capturingInvoker struct {
	req SynthesisRequest
}

func (i *capturingInvoker) Invoke(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	i.req = req
	return &SynthesisResult{Image: ImageData{MIME: "image/png", Data: []byte{1}}}, nil
}

// mapClassifier assigns tiers by item name.
type mapClassifier struct {
	tiers        map[string]GarmentTier
	descriptions map[string]string
}

func (c mapClassifier) Classify(ctx context.Context, item GarmentInput) ClassifiedItem {
	return ClassifiedItem{Source: item, Tier: c.tiers[item.Name], Description: c.descriptions[item.Name]}
}

func subjectImage() ImageData {
	return ImageData{MIME: "image/png", Data: []byte{9}}
}

// countingClassifier records how often it was consulted.
type countingClassifier struct {
	calls       int
	description string
}

func (c *countingClassifier) Classify(ctx context.Context, item GarmentInput) ClassifiedItem {
	c.calls++
	return ClassifiedItem{Source: item, Tier: TierPrimary, Description: c.description}
}

func TestApplySingleRequest(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{Invoker: invoker, Classifier: &countingClassifier{}}

	_, err := c.ApplySingle(context.Background(), subjectImage(), garment("Denim Jacket"))
	assert.NoError(t, err)

	assert.Len(t, invoker.req.Parts, 3)
	assert.NotNil(t, invoker.req.Parts[0].Image)
	assert.NotNil(t, invoker.req.Parts[1].Image)
	assert.Contains(t, invoker.req.Parts[2].Text, "Denim Jacket")
	assert.Equal(t, "9:16", invoker.req.AspectRatio)
	assert.Contains(t, invoker.req.System, "facial identity")
}

func TestApplySingleReinforcesWithDescription(t *testing.T) {
	invoker := &capturingInvoker{}
	classifier := &countingClassifier{description: "faded blue denim jacket with brass buttons"}
	c := &GenerationCompositor{Invoker: invoker, Classifier: classifier}

	_, err := c.ApplySingle(context.Background(), subjectImage(), garment("Denim Jacket"))
	assert.NoError(t, err)

	assert.Equal(t, 1, classifier.calls)
	assert.Contains(t, invoker.req.Parts[2].Text, "faded blue denim jacket with brass buttons")
}

func TestApplySingleEmptyDescriptionStillBuilds(t *testing.T) {
	invoker := &capturingInvoker{}
	classifier := &countingClassifier{}
	c := &GenerationCompositor{Invoker: invoker, Classifier: classifier}

	_, err := c.ApplySingle(context.Background(), subjectImage(), garment("Denim Jacket"))
	assert.NoError(t, err)

	assert.Equal(t, 1, classifier.calls)
	assert.NotContains(t, invoker.req.Parts[2].Text, "INPUT 2 is: ")
}

func TestGenerateSubjectUsesIdentityProfile(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{
		Invoker: invoker,
		Analyzer: cannedAnalyzer{response: `{
			"descriptor": "mid-20s, athletic build",
			"skin_texture": "light freckles, warm undertone",
			"hair_details": "short curly dark brown hair",
			"prompt_fragment": "Raw portrait photography, 85mm lens. Visible pores, no airbrushing."
		}`},
	}

	_, err := c.GenerateSubject(context.Background(), subjectImage())
	assert.NoError(t, err)

	assert.Len(t, invoker.req.Parts, 2)
	prompt := invoker.req.Parts[1].Text
	assert.Contains(t, prompt, "mid-20s, athletic build")
	assert.Contains(t, prompt, "light freckles, warm undertone")
	assert.Contains(t, prompt, "short curly dark brown hair")
	assert.Contains(t, prompt, "no airbrushing")
}

func TestGenerateSubjectAnalysisFailureStillRenders(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{
		Invoker:  invoker,
		Analyzer: cannedAnalyzer{err: fmt.Errorf("vision model down")},
	}

	result, err := c.GenerateSubject(context.Background(), subjectImage())
	assert.NoError(t, err)
	assert.NotNil(t, result)

	prompt := invoker.req.Parts[1].Text
	assert.Contains(t, prompt, "full-body fashion e-commerce model shot")
	assert.NotContains(t, prompt, "The person:")
}

func TestComposeManyPartitionsItems(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{
		Invoker: invoker,
		Classifier: mapClassifier{
			tiers: map[string]GarmentTier{
				"Coat":     TierPrimary,
				"Boots":    TierPrimary,
				"Necklace": TierSecondary,
			},
			descriptions: map[string]string{
				"Necklace": "thin gold chain",
			},
		},
	}

	items := []GarmentInput{garment("Coat"), garment("Necklace"), garment("Boots")}
	_, err := c.ComposeMany(context.Background(), subjectImage(), items)
	assert.NoError(t, err)

	// subject + two primary garments as pixels + the prompt
	assert.Len(t, invoker.req.Parts, 4)
	prompt := invoker.req.Parts[3].Text
	assert.Contains(t, prompt, "Coat, Boots")
	assert.Contains(t, prompt, "Necklace: thin gold chain")
}

func TestComposeManyAllPrimary(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{
		Invoker: invoker,
		Classifier: mapClassifier{
			tiers: map[string]GarmentTier{"Coat": TierPrimary, "Boots": TierPrimary},
		},
	}

	_, err := c.ComposeMany(context.Background(), subjectImage(), []GarmentInput{garment("Coat"), garment("Boots")})
	assert.NoError(t, err)

	prompt := invoker.req.Parts[3].Text
	assert.NotContains(t, prompt, "accessories")
}

func TestVaryWithKnownMood(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{Invoker: invoker}

	_, err := c.Vary(context.Background(), subjectImage(), "hands in pockets", "tokyo")
	assert.NoError(t, err)

	prompt := invoker.req.Parts[1].Text
	assert.Contains(t, prompt, "hands in pockets")
	assert.Contains(t, prompt, "neon")
	assert.NotContains(t, prompt, "white studio background")
}

func TestVaryWithFreeFormMood(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{Invoker: invoker}

	_, err := c.Vary(context.Background(), subjectImage(), "", "a medieval castle courtyard")
	assert.NoError(t, err)

	prompt := invoker.req.Parts[1].Text
	assert.Contains(t, prompt, "a medieval castle courtyard")
}

func TestVaryWithoutMoodKeepsStudio(t *testing.T) {
	invoker := &capturingInvoker{}
	c := &GenerationCompositor{Invoker: invoker}

	_, err := c.Vary(context.Background(), subjectImage(), "side profile", "")
	assert.NoError(t, err)

	prompt := invoker.req.Parts[1].Text
	assert.Contains(t, prompt, "white studio background")
	assert.True(t, strings.Contains(prompt, "side profile"))
}
