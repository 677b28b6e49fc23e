package config

import (
	"testing"
	"time"
)

func TestLoadPipelineDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Pipeline.TopK != 5 {
		t.Fatalf("expected default top-k 5, got %d", cfg.Pipeline.TopK)
	}
	if cfg.Pipeline.RelevanceThreshold != 0.7 {
		t.Fatalf("expected default relevance threshold 0.7, got %v", cfg.Pipeline.RelevanceThreshold)
	}
	if cfg.Pipeline.ConsistencyThreshold != 7.0 {
		t.Fatalf("expected default consistency threshold 7.0, got %v", cfg.Pipeline.ConsistencyThreshold)
	}
	if cfg.Pipeline.MaxCorrectionLoops != 2 {
		t.Fatalf("expected default max correction loops 2, got %d", cfg.Pipeline.MaxCorrectionLoops)
	}
	if !cfg.Pipeline.SelfCorrection {
		t.Fatal("expected self-correction enabled by default")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("MAX_CORRECTION_LOOPS", "4")
	t.Setenv("SELF_CORRECTION", "false")
	t.Setenv("CONSISTENCY_THRESHOLD", "8.5")
	t.Setenv("STEP_TIMEOUT", "30s")

	cfg := Load()

	if cfg.Pipeline.MaxCorrectionLoops != 4 {
		t.Fatalf("expected max correction loops 4, got %d", cfg.Pipeline.MaxCorrectionLoops)
	}
	if cfg.Pipeline.SelfCorrection {
		t.Fatal("expected self-correction disabled")
	}
	if cfg.Pipeline.ConsistencyThreshold != 8.5 {
		t.Fatalf("expected consistency threshold 8.5, got %v", cfg.Pipeline.ConsistencyThreshold)
	}
	if cfg.Pipeline.StepTimeout != 30*time.Second {
		t.Fatalf("expected step timeout 30s, got %v", cfg.Pipeline.StepTimeout)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("TOP_K", "not-a-number")
	t.Setenv("SELF_CORRECTION", "maybe")

	cfg := Load()

	if cfg.Pipeline.TopK != 5 {
		t.Fatalf("expected fallback top-k 5, got %d", cfg.Pipeline.TopK)
	}
	if !cfg.Pipeline.SelfCorrection {
		t.Fatal("expected fallback self-correction true")
	}
}
