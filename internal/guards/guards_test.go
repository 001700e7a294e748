package guards

import (
	"context"
	"strings"
	"testing"
)

func TestHallucinationClean(t *testing.T) {
	r := Hallucination{}.Check(context.Background(), "The gateway responded in 40ms.", Options{})
	if !r.Passed {
		t.Errorf("Passed = false for clean text: %+v", r)
	}
}

func TestHallucinationFabricationMarker(t *testing.T) {
	r := Hallucination{}.Check(context.Background(), "As an AI, I don't have access to your files.", Options{})
	if r.Passed {
		t.Fatal("Passed = true despite fabrication markers")
	}
	if r.Blocking {
		t.Error("Blocking = true outside strict mode")
	}

	strict := Hallucination{}.Check(context.Background(), "As an AI, I cannot verify that.", Options{Strict: true})
	if !strict.Blocking {
		t.Error("Blocking = false in strict mode")
	}
}

func TestHallucinationHedgingWarning(t *testing.T) {
	text := "It might be the cache, possibly the disk, or perhaps the network. I think it could be DNS."
	r := Hallucination{}.Check(context.Background(), text, Options{})
	if !r.Passed {
		t.Errorf("hedging alone should not fail: %+v", r)
	}
	if len(r.Warnings) == 0 {
		t.Error("expected a heavy-hedging warning")
	}
}

func TestHonestyAutoHedge(t *testing.T) {
	r := Honesty{AutoHedge: true}.Check(context.Background(), "Restarting always fixes it.", Options{})
	if r.Rewritten == "" {
		t.Fatal("no rewrite produced")
	}
	if !strings.Contains(r.Rewritten, "generally") || strings.Contains(r.Rewritten, "always") {
		t.Errorf("Rewritten = %q, want absolute softened", r.Rewritten)
	}
}

func TestHonestyFalseConfidence(t *testing.T) {
	r := Honesty{}.Check(context.Background(), "Trust me, this is fine.", Options{})
	if r.Passed {
		t.Error("Passed = true despite false-confidence phrase")
	}
}

func TestHonestyDisclaimerWarning(t *testing.T) {
	r := Honesty{}.Check(context.Background(), "Increase the dosage to 40mg.", Options{})
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w, "medical") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want medical-disclaimer warning", r.Warnings)
	}
}

const statusSchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {"status": {"type": "string"}}
}`

func TestSchemaGuard(t *testing.T) {
	s := NewSchema()
	if err := s.Register("status", statusSchema); err != nil {
		t.Fatalf("Register: %v", err)
	}

	t.Run("valid", func(t *testing.T) {
		r := s.Check(context.Background(), `{"status":"ok"}`, Options{SchemaName: "status"})
		if !r.Passed {
			t.Errorf("Passed = false: %+v", r)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		r := s.Check(context.Background(), `{"other":1}`, Options{SchemaName: "status", SchemaRequired: true})
		if r.Passed || !r.Blocking {
			t.Errorf("result = %+v, want blocking failure", r)
		}
	})

	t.Run("not json", func(t *testing.T) {
		r := s.Check(context.Background(), "plain text", Options{SchemaName: "status"})
		if r.Passed {
			t.Error("Passed = true for non-JSON output")
		}
		if r.Blocking {
			t.Error("Blocking = true without SchemaRequired")
		}
	})

	t.Run("unregistered degrades", func(t *testing.T) {
		r := s.Check(context.Background(), `{}`, Options{SchemaName: "missing"})
		if !r.Passed || len(r.Warnings) == 0 {
			t.Errorf("result = %+v, want pass with warning", r)
		}
	})

	t.Run("no schema requested", func(t *testing.T) {
		r := s.Check(context.Background(), "anything", Options{})
		if !r.Passed {
			t.Errorf("Passed = false with no schema requested")
		}
	})
}

func TestPipelineRewriteFlowsThrough(t *testing.T) {
	p := NewPipeline(nil, nil)
	out := p.Run(context.Background(), "Restarting always fixes it.", Options{})
	if !out.Passed {
		t.Fatalf("Passed = false: %+v", out.Results)
	}
	if !strings.Contains(out.Text, "generally") {
		t.Errorf("Text = %q, want auto-hedged", out.Text)
	}
}

func TestPipelineShortCircuitsOnBlocking(t *testing.T) {
	p := NewPipeline(nil, nil)
	out := p.Run(context.Background(), "As an AI, I just made that up.", Options{Strict: true})
	if out.Passed {
		t.Fatal("Passed = true for blocked output")
	}
	if len(out.Results) != 1 {
		t.Errorf("ran %d guards after a blocking finding, want 1", len(out.Results))
	}
}

func TestPipelineNonStrictAccumulates(t *testing.T) {
	p := NewPipeline(nil, nil)
	out := p.Run(context.Background(), "As an AI, I don't have access to that.", Options{})
	if out.Passed {
		t.Error("Passed = true despite findings")
	}
	if len(out.Results) != 3 {
		t.Errorf("ran %d guards, want all 3", len(out.Results))
	}
}
