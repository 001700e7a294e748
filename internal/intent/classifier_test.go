package intent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type fakeGenerator struct {
	calls     atomic.Int64
	responses []string
	errs      []error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ GenerateOptions) (string, error) {
	n := int(f.calls.Add(1)) - 1
	var err error
	if n < len(f.errs) {
		err = f.errs[n]
	}
	var resp string
	if n < len(f.responses) {
		resp = f.responses[n]
	}
	return resp, err
}

func TestClassifyFastPathSkipsLLM(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewClassifier(gen, nil, nil)

	got := c.Classify(context.Background(), "turn on the lights", true)
	if got.Tag != TagHomeLight {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagHomeLight)
	}
	if got.UsedLLM {
		t.Error("UsedLLM = true for a fast-path match")
	}
	if gen.calls.Load() != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls.Load())
	}
}

func TestClassifyLLMFallback(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{`{"tag":"home-ac-set-mode","parameters":{"action":"set_mode","mode":"cool"}}`},
	}
	c := NewClassifier(gen, nil, nil)

	got := c.Classify(context.Background(), "make it a bit cooler in here", true)
	if got.Tag != TagHomeACSetMode {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagHomeACSetMode)
	}
	if !got.UsedLLM {
		t.Error("UsedLLM = false, want true")
	}
	if got.Parameters["mode"] != "cool" {
		t.Errorf("Parameters[mode] = %v, want cool", got.Parameters["mode"])
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls.Load())
	}
}

func TestClassifyLLMDisabled(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewClassifier(gen, nil, nil)

	got := c.Classify(context.Background(), "make it a bit cooler in here", false)
	if got.Tag != TagGeneralChat {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagGeneralChat)
	}
	if gen.calls.Load() != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls.Load())
	}
}

func TestClassifyLLMRetriesOnce(t *testing.T) {
	gen := &fakeGenerator{
		errs:      []error{errors.New("model busy"), nil},
		responses: []string{"", `{"tag":"media-queue","parameters":{}}`},
	}
	c := NewClassifier(gen, nil, nil)

	got := c.Classify(context.Background(), "anything pending for me", true)
	if got.Tag != TagMediaQueue {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagMediaQueue)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls.Load())
	}
}

func TestClassifyLLMDegrades(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{errors.New("down"), errors.New("still down")},
	}
	c := NewClassifier(gen, nil, nil)

	got := c.Classify(context.Background(), "make it a bit cooler in here", true)
	if got.Tag != TagGeneralChat {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagGeneralChat)
	}
	if got.Confidence != degradedConfidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, degradedConfidence)
	}
	if !got.UsedLLM {
		t.Error("UsedLLM = false, want true")
	}
}

func TestClassifyLLMMalformedSalvage(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"The user probably wants the lights on, I think."},
	}
	c := NewClassifier(gen, nil, nil)

	got := c.Classify(context.Background(), "make the room bright", true)
	if got.Tag != TagGeneralChat {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagGeneralChat)
	}
	if got.Confidence != salvagedConfidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, salvagedConfidence)
	}
}

func TestClassifyNilGenerator(t *testing.T) {
	c := NewClassifier(nil, nil, nil)

	got := c.Classify(context.Background(), "make it a bit cooler in here", true)
	if got.Tag != TagGeneralChat {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagGeneralChat)
	}
	if got.UsedLLM {
		t.Error("UsedLLM = true with no generator wired")
	}
}

func TestParseClassificationFuzzyTag(t *testing.T) {
	got := parseClassification(`{"tag":"light","parameters":{"action":"on"}}`)
	if got.Tag != TagHomeLight {
		t.Fatalf("Tag = %s, want %s", got.Tag, TagHomeLight)
	}
	if got.Confidence != salvagedConfidence {
		t.Errorf("Confidence = %v, want %v for a fuzzy tag", got.Confidence, salvagedConfidence)
	}
}
