package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordedCall struct {
	Model LLMModelName
	Req   SynthesisRequest
}

// scriptedCapability answers each call with the next scripted outcome.
type scriptedCapability struct {
	calls    []recordedCall
	outcomes []func() (*SynthesisResult, error)
}

func (c *scriptedCapability) GenerateImage(ctx context.Context, model LLMModelName, req SynthesisRequest) (*SynthesisResult, error) {
	c.calls = append(c.calls, recordedCall{Model: model, Req: req})
	next := c.outcomes[0]
	if len(c.outcomes) > 1 {
		c.outcomes = c.outcomes[1:]
	}
	return next()
}

func okResult() func() (*SynthesisResult, error) {
	return func() (*SynthesisResult, error) {
		return &SynthesisResult{Image: ImageData{MIME: "image/png", Data: []byte{1}}, Model: "fake"}, nil
	}
}

func failWith(err error) func() (*SynthesisResult, error) {
	return func() (*SynthesisResult, error) {
		return nil, err
	}
}

func testRequest() SynthesisRequest {
	return SynthesisRequest{
		Parts:       []SynthesisPart{TextPart("prompt")},
		System:      "system",
		AspectRatio: "9:16",
		Temperature: floatPointer(1),
	}
}

func TestInvokePrimarySucceeds(t *testing.T) {
	capability := &scriptedCapability{outcomes: []func() (*SynthesisResult, error){okResult()}}
	inv := NewTieredInvoker(capability)

	result, err := inv.Invoke(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Len(t, capability.calls, 1)
	assert.Equal(t, Pro3Image, capability.calls[0].Model)
	assert.Equal(t, "9:16", capability.calls[0].Req.AspectRatio)
}

func TestInvokeFallsBackWithStrippedOptions(t *testing.T) {
	capability := &scriptedCapability{outcomes: []func() (*SynthesisResult, error){
		failWith(fmt.Errorf("primary down")),
		okResult(),
	}}
	inv := NewTieredInvoker(capability)

	result, err := inv.Invoke(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Len(t, capability.calls, 2)
	assert.Equal(t, Flash25Image, capability.calls[1].Model)
	// the fallback model does not support the advanced options
	assert.Equal(t, "", capability.calls[1].Req.AspectRatio)
	assert.Nil(t, capability.calls[1].Req.Temperature)
	assert.Equal(t, "system", capability.calls[1].Req.System)
}

func TestInvokeThirdTierIsMinimal(t *testing.T) {
	capability := &scriptedCapability{outcomes: []func() (*SynthesisResult, error){
		failWith(fmt.Errorf("primary down")),
		failWith(fmt.Errorf("fallback down")),
		okResult(),
	}}
	inv := NewTieredInvoker(capability)

	result, err := inv.Invoke(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Len(t, capability.calls, 3)
	last := capability.calls[2]
	assert.Equal(t, Flash25Image, last.Model)
	assert.Equal(t, "", last.Req.System)
	assert.Equal(t, "", last.Req.AspectRatio)
	assert.Nil(t, last.Req.Temperature)
	assert.Equal(t, testRequest().Parts, last.Req.Parts)
}

func TestInvokeExhaustedReturnsSynthesisError(t *testing.T) {
	capability := &scriptedCapability{outcomes: []func() (*SynthesisResult, error){
		failWith(fmt.Errorf("nope")),
	}}
	inv := NewTieredInvoker(capability)

	result, err := inv.Invoke(context.Background(), testRequest())
	assert.Nil(t, result)
	var synthErr *SynthesisError
	assert.ErrorAs(t, err, &synthErr)
	assert.Len(t, capability.calls, 3)
}

func TestInvokeBlockedAbortsImmediately(t *testing.T) {
	capability := &scriptedCapability{outcomes: []func() (*SynthesisResult, error){
		failWith(&BlockedError{Reason: "SAFETY"}),
	}}
	inv := NewTieredInvoker(capability)

	result, err := inv.Invoke(context.Background(), testRequest())
	assert.Nil(t, result)
	assert.True(t, IsBlocked(err))
	// no fallback on content violations
	assert.Len(t, capability.calls, 1)
}

func TestInvokeBlockedOnFallbackAborts(t *testing.T) {
	capability := &scriptedCapability{outcomes: []func() (*SynthesisResult, error){
		failWith(fmt.Errorf("primary down")),
		failWith(&BlockedError{Reason: "SAFETY"}),
	}}
	inv := NewTieredInvoker(capability)

	_, err := inv.Invoke(context.Background(), testRequest())
	assert.True(t, IsBlocked(err))
	assert.Len(t, capability.calls, 2)
}

type slowCapability struct {
	delay time.Duration
}

func (c *slowCapability) GenerateImage(ctx context.Context, model LLMModelName, req SynthesisRequest) (*SynthesisResult, error) {
	select {
	case <-time.After(c.delay):
		return &SynthesisResult{Image: ImageData{MIME: "image/png", Data: []byte{1}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCallWithDeadlineTimesOut(t *testing.T) {
	inv := NewTieredInvoker(&slowCapability{delay: time.Second})
	inv.PrimaryTimeout = 10 * time.Millisecond

	_, err := inv.callWithDeadline(context.Background(), inv.PrimaryModel, testRequest(), inv.PrimaryTimeout)
	var unavailable *UnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.Equal(t, Pro3Image.String(), unavailable.Model)
}

func TestInvokeTimeoutFallsThroughTiers(t *testing.T) {
	inv := NewTieredInvoker(&slowCapability{delay: 40 * time.Millisecond})
	inv.PrimaryTimeout = 5 * time.Millisecond
	inv.FallbackTimeout = 5 * time.Millisecond

	// the third tier has no deadline, so the slow capability eventually answers
	result, err := inv.Invoke(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.NotNil(t, result)
}
