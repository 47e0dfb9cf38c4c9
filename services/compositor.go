package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

// CompositorProvider builds prompts for the studio's generation modes and
// runs them through the tiered invoker.
type CompositorProvider interface {
	GenerateSubject(ctx context.Context, photo ImageData) (*SynthesisResult, error)
	ApplySingle(ctx context.Context, subject ImageData, item GarmentInput) (*SynthesisResult, error)
	ComposeMany(ctx context.Context, subject ImageData, items []GarmentInput) (*SynthesisResult, error)
	Vary(ctx context.Context, look ImageData, pose string, mood string) (*SynthesisResult, error)
	ScoreOutfit(ctx context.Context, look ImageData) (*StyleScore, error)
}

type InvokerProvider interface {
	Invoke(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

type GenerationCompositor struct {
	Invoker    InvokerProvider
	Classifier ClassifierProvider
	Analyzer   LLMImageProcessor
}

const compositorSystem = `You are an expert virtual try-on image editor. Always keep the person's facial identity, body proportions, skin tone and hair exactly as in the source image, 100% unchanged. Output a single photorealistic full-body image on a flat, consistent, all-white background with natural soft professional lighting. Clean all watermarks, background elements and other people. Never return text when an image is possible.`

const subjectSystem = `You are an expert fashion photographer AI. If no person is detected in the photo return "NO_PERSON" as text. Never return text otherwise.`

var identitySchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"descriptor":      {Type: "string"},
		"skin_texture":    {Type: "string"},
		"hair_details":    {Type: "string"},
		"prompt_fragment": {Type: "string"},
	},
	Required: []string{"descriptor", "skin_texture", "hair_details", "prompt_fragment"},
}

const identityPrompt = `Act as a portrait photographer analyzing this person's photo. Ignore beauty filters, focus on realism. Return "descriptor" (approximate age, build and features in a few words), "skin_texture" (real texture: pores, freckles, stubble, undertone), "hair_details" (color, length, style) and "prompt_fragment" (a two-sentence instruction for re-rendering this exact person photorealistically, e.g. raw portrait photography, visible pores, no airbrushing).`

type identityProfile struct {
	Descriptor     string `json:"descriptor"`
	SkinTexture    string `json:"skin_texture"`
	HairDetails    string `json:"hair_details"`
	PromptFragment string `json:"prompt_fragment"`
}

// analyzeIdentity deep-scans the user photo so the portrait prompt can pin
// down skin and hair detail. Best-effort like classification: on any failure
// the subject is rendered from the photo alone.
func (c *GenerationCompositor) analyzeIdentity(ctx context.Context, photo ImageData) *identityProfile {
	raw, err := c.Analyzer.AnalyzeImage(ctx, photo, "", identityPrompt, identitySchema)
	if err != nil {
		fmt.Printf("[Compose] identity analysis failed, rendering from photo alone: %v\n", err)
		sentry.CaptureException(err)
		return nil
	}
	var parsed identityProfile
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fmt.Printf("[Compose] bad identity analysis response: %v\n", err)
		sentry.CaptureException(err)
		return nil
	}
	return &parsed
}

func (c *GenerationCompositor) GenerateSubject(ctx context.Context, photo ImageData) (*SynthesisResult, error) {
	profile := c.analyzeIdentity(ctx, photo)

	var b strings.Builder
	b.WriteString(`Transform the person from this photo into a full-body fashion e-commerce model shot, head to toe, keeping their facial identity, body shape, hair and skin tone exactly the same. The person stands straight facing the camera in a relaxed confident pose, wearing a neutral white t-shirt and white trousers, hands empty. Flat, unlit, pure white studio background with no gradients. Natural soft professional lighting, high resolution.`)
	if profile != nil {
		if profile.Descriptor != "" {
			fmt.Fprintf(&b, " The person: %s.", profile.Descriptor)
		}
		if profile.SkinTexture != "" {
			fmt.Fprintf(&b, " Skin: %s. Render it without smoothing.", profile.SkinTexture)
		}
		if profile.HairDetails != "" {
			fmt.Fprintf(&b, " Hair: %s.", profile.HairDetails)
		}
		if profile.PromptFragment != "" {
			fmt.Fprintf(&b, " %s", profile.PromptFragment)
		}
	}
	return c.Invoker.Invoke(ctx, SynthesisRequest{
		Parts:       []SynthesisPart{ImagePart(photo), TextPart(b.String())},
		System:      subjectSystem,
		AspectRatio: "9:16",
		Temperature: floatPointer(1),
	})
}

func (c *GenerationCompositor) ApplySingle(ctx context.Context, subject ImageData, item GarmentInput) (*SynthesisResult, error) {
	// the item goes in twice, as pixels and as words, so the model cannot
	// silently substitute a lookalike garment
	classified := c.Classifier.Classify(ctx, item)

	var b strings.Builder
	fmt.Fprintf(&b, `INPUT 1 is a person. INPUT 2 is a clothing item ("%s").`, item.Name)
	if classified.Description != "" {
		fmt.Fprintf(&b, " INPUT 2 is: %s.", classified.Description)
	}
	b.WriteString(` Generate a new image where the exact person from INPUT 1 is wearing the exact item from INPUT 2, fitted naturally to their body with realistic drape, folds and shadows. Keep every other garment the person wears unchanged, keep pose, framing and white background identical to INPUT 1.`)
	return c.Invoker.Invoke(ctx, SynthesisRequest{
		Parts:       []SynthesisPart{ImagePart(subject), ImagePart(item.Image), TextPart(b.String())},
		System:      compositorSystem,
		AspectRatio: "9:16",
		Temperature: floatPointer(1),
	})
}

// ComposeMany classifies all items concurrently, then sends primary items as
// pixels and secondary items as text so the part list stays small.
func (c *GenerationCompositor) ComposeMany(ctx context.Context, subject ImageData, items []GarmentInput) (*SynthesisResult, error) {
	classified := make([]ClassifiedItem, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item GarmentInput) {
			defer wg.Done()
			classified[i] = c.Classifier.Classify(ctx, item)
		}(i, item)
	}
	wg.Wait()

	parts := []SynthesisPart{ImagePart(subject)}
	var primaryNames []string
	var secondaryLines []string
	for _, item := range classified {
		if item.Tier == TierPrimary {
			parts = append(parts, ImagePart(item.Source.Image))
			primaryNames = append(primaryNames, item.Source.Name)
			continue
		}
		line := item.Source.Name
		if item.Description != "" {
			line = fmt.Sprintf("%s: %s", item.Source.Name, item.Description)
		}
		secondaryLines = append(secondaryLines, line)
	}

	var b strings.Builder
	b.WriteString("The first image is a person. Dress the exact same person in a complete outfit made of all the following pieces at once, layered naturally.")
	if len(primaryNames) > 0 {
		fmt.Fprintf(&b, " The remaining images are the garments to wear, in order: %s. Render each from its exact pixels with realistic fit and drape.", strings.Join(primaryNames, ", "))
	}
	if len(secondaryLines) > 0 {
		fmt.Fprintf(&b, " Additionally add these accessories from their descriptions: %s.", strings.Join(secondaryLines, "; "))
	}
	b.WriteString(" Keep pose, framing and white background identical to the first image.")

	parts = append(parts, TextPart(b.String()))
	return c.Invoker.Invoke(ctx, SynthesisRequest{
		Parts:       parts,
		System:      compositorSystem,
		AspectRatio: "9:16",
		Temperature: floatPointer(1),
	})
}

// moodHints translate a scene mood into lighting plus how the light behaves
// on clothing materials, which keeps fabrics believable across restyles.
var moodHints = map[string]string{
	"tokyo":  "a rainy Tokyo street at night, neon signs reflecting in wet asphalt; let neon color spill wrap around glossy fabrics and leather while matte cotton stays diffuse",
	"golden": "an outdoor scene at golden hour, low warm sun with a soft rim light on hair and shoulders; sheer fabrics glow slightly backlit, denim and wool stay warm and matte",
	"flash":  "a 2000s paparazzi direct-flash shot at night, hard on-camera flash; specular hotspots on satin and metal hardware, deep falloff to a dark background",
}

func (c *GenerationCompositor) Vary(ctx context.Context, look ImageData, pose string, mood string) (*SynthesisResult, error) {
	var b strings.Builder
	b.WriteString("Regenerate this exact person wearing this exact outfit, every garment identical in color, material, cut and layering.")
	if pose != "" {
		fmt.Fprintf(&b, " Change only the pose: %s.", pose)
	}
	if hint, ok := moodHints[mood]; ok {
		fmt.Fprintf(&b, " Place the scene in %s.", hint)
	} else if mood != "" {
		fmt.Fprintf(&b, " Place the scene in: %s.", mood)
	} else {
		b.WriteString(" Keep the flat white studio background.")
	}
	b.WriteString(" Photorealistic, high resolution, facial identity 100% unchanged.")

	return c.Invoker.Invoke(ctx, SynthesisRequest{
		Parts:       []SynthesisPart{ImagePart(look), TextPart(b.String())},
		System:      compositorSystem,
		AspectRatio: "9:16",
		Temperature: floatPointer(1),
	})
}
