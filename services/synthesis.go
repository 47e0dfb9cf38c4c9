package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// ImageData is an in-memory image with its MIME type.
type ImageData struct {
	MIME string
	Data []byte
}

// SynthesisPart is one ordered part of a generation request, either text or
// an image. Part order is meaningful to the model and is preserved as given.
type SynthesisPart struct {
	Text  string
	Image *ImageData
}

func TextPart(text string) SynthesisPart {
	return SynthesisPart{Text: text}
}

func ImagePart(image ImageData) SynthesisPart {
	return SynthesisPart{Image: &image}
}

// SynthesisRequest describes one image generation call. AspectRatio and
// Temperature are advanced knobs the fallback tiers strip away.
type SynthesisRequest struct {
	Parts       []SynthesisPart
	System      string
	AspectRatio string
	Temperature *float32
}

type SynthesisResult struct {
	Image            ImageData
	Model            string
	InputTokenCount  int32
	OutputTokenCount int32
	TotalTokenCount  int32
}

// BlockedError means the request was rejected for content policy reasons.
// Retrying on another model would resend the same flagged content, so the
// invoker never falls back on it.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("content violation: %s", e.Reason)
}

// IsBlocked reports whether err carries a content violation anywhere in
// its chain.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}

// UnavailableError means a tier did not answer in time.
type UnavailableError struct {
	Model string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// SynthesisError means every tier was exhausted without producing an image.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("image generation failed on all models: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// SynthesisCapability renders one request against one named model.
type SynthesisCapability interface {
	GenerateImage(ctx context.Context, model LLMModelName, req SynthesisRequest) (*SynthesisResult, error)
}

// TieredInvoker runs a request through up to three attempts: the primary
// model under a strict deadline, the fallback model with advanced options
// stripped, and finally the fallback model with a minimal config. A
// BlockedError from any tier aborts the chain immediately.
type TieredInvoker struct {
	Capability      SynthesisCapability
	PrimaryModel    LLMModelName
	FallbackModel   LLMModelName
	PrimaryTimeout  time.Duration
	FallbackTimeout time.Duration
}

func NewTieredInvoker(capability SynthesisCapability) *TieredInvoker {
	return &TieredInvoker{
		Capability:      capability,
		PrimaryModel:    Pro3Image,
		FallbackModel:   Flash25Image,
		PrimaryTimeout:  60 * time.Second,
		FallbackTimeout: 30 * time.Second,
	}
}

func (inv *TieredInvoker) Invoke(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	result, err := inv.callWithDeadline(ctx, inv.PrimaryModel, req, inv.PrimaryTimeout)
	if err == nil {
		return result, nil
	}
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return nil, err
	}
	fmt.Printf("[Synthesis] primary model %s failed, falling back: %v\n", inv.PrimaryModel, err)
	sentry.CaptureException(err)

	// advanced options the fallback model is not known to support
	stripped := req
	stripped.AspectRatio = ""
	stripped.Temperature = nil
	result, err = inv.callWithDeadline(ctx, inv.FallbackModel, stripped, inv.FallbackTimeout)
	if err == nil {
		return result, nil
	}
	if errors.As(err, &blocked) {
		return nil, err
	}
	fmt.Printf("[Synthesis] fallback model %s failed, retrying with minimal config: %v\n", inv.FallbackModel, err)
	sentry.CaptureException(err)

	// last attempt: same parts, everything else default, no deadline race
	minimal := SynthesisRequest{Parts: req.Parts}
	result, err = inv.Capability.GenerateImage(ctx, inv.FallbackModel, minimal)
	if err == nil {
		return result, nil
	}
	if errors.As(err, &blocked) {
		return nil, err
	}
	return nil, &SynthesisError{Err: err}
}

// callWithDeadline races one model call against a timeout. The call is not
// cancellable once issued, the late result is simply dropped.
func (inv *TieredInvoker) callWithDeadline(ctx context.Context, model LLMModelName, req SynthesisRequest, timeout time.Duration) (*SynthesisResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *SynthesisResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := inv.Capability.GenerateImage(callCtx, model, req)
		done <- outcome{result, err}
	}()

	select {
	case <-callCtx.Done():
		return nil, &UnavailableError{Model: model.String(), Err: callCtx.Err()}
	case out := <-done:
		return out.result, out.err
	}
}
