package logging

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestGenerationMetrics_MarshalLogObject(t *testing.T) {
	m := GenerationMetrics{
		RequestID:         "req-1",
		Model:             "sd15",
		Sampler:           "Euler a",
		Width:             512,
		Height:            512,
		Steps:             25,
		BatchSize:         2,
		Seeds:             []int64{42, 43},
		InferenceDuration: 1500 * time.Millisecond,
		TotalDuration:     2 * time.Second,
	}

	enc := zapcore.NewMapObjectEncoder()
	if err := m.MarshalLogObject(enc); err != nil {
		t.Fatalf("MarshalLogObject() error: %v", err)
	}

	if enc.Fields["model"] != "sd15" || enc.Fields["batch_size"] != 2 {
		t.Errorf("fields = %v", enc.Fields)
	}
	if enc.Fields["inference_ms"] != int64(1500) {
		t.Errorf("inference_ms = %v", enc.Fields["inference_ms"])
	}
	if enc.Fields["seconds_per_image"] != 1.0 {
		t.Errorf("seconds_per_image = %v", enc.Fields["seconds_per_image"])
	}
	seeds, ok := enc.Fields["seeds"].([]interface{})
	if !ok || len(seeds) != 2 || seeds[0] != int64(42) || seeds[1] != int64(43) {
		t.Errorf("seeds = %#v", enc.Fields["seeds"])
	}
}

func TestGenerationMetrics_OmitsEmptyRequestID(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	GenerationMetrics{Model: "x"}.MarshalLogObject(enc)

	if _, ok := enc.Fields["request_id"]; ok {
		t.Error("request_id should be omitted when empty")
	}
	if _, ok := enc.Fields["seconds_per_image"]; ok {
		t.Error("seconds_per_image should be omitted without a duration")
	}
}

func TestGenerationFields_Key(t *testing.T) {
	if f := GenerationFields(GenerationMetrics{}); f.Key != "generation" {
		t.Errorf("GenerationFields key = %q", f.Key)
	}
}
