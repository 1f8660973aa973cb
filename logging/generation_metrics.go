package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GenerationMetrics summarizes one generate call. It is logged once per
// request, after persistence, as a nested "generation" object.
type GenerationMetrics struct {
	RequestID string
	Model     string
	Sampler   string
	Width     int
	Height    int
	Steps     int
	BatchSize int
	Seeds     []int64

	// LoadDuration is zero when the pipeline came from the cache.
	LoadDuration      time.Duration
	InferenceDuration time.Duration
	PersistDuration   time.Duration
	TotalDuration     time.Duration
}

// MarshalLogObject implements zapcore.ObjectMarshaler. Durations are in
// milliseconds.
func (m GenerationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if m.RequestID != "" {
		enc.AddString("request_id", m.RequestID)
	}
	enc.AddString("model", m.Model)
	enc.AddString("sampler", m.Sampler)
	enc.AddInt("width", m.Width)
	enc.AddInt("height", m.Height)
	enc.AddInt("steps", m.Steps)
	enc.AddInt("batch_size", m.BatchSize)
	if err := enc.AddArray("seeds", seedArray(m.Seeds)); err != nil {
		return err
	}
	enc.AddInt64("load_ms", m.LoadDuration.Milliseconds())
	enc.AddInt64("inference_ms", m.InferenceDuration.Milliseconds())
	enc.AddInt64("persist_ms", m.PersistDuration.Milliseconds())
	enc.AddInt64("total_ms", m.TotalDuration.Milliseconds())
	if m.TotalDuration > 0 && m.BatchSize > 0 {
		enc.AddFloat64("seconds_per_image", m.TotalDuration.Seconds()/float64(m.BatchSize))
	}
	return nil
}

type seedArray []int64

func (s seedArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, seed := range s {
		enc.AppendInt64(seed)
	}
	return nil
}

// GenerationFields wraps metrics as a single zap field.
//
//	logger.Info("generation complete", logging.GenerationFields(m))
func GenerationFields(m GenerationMetrics) zap.Field {
	return zap.Object("generation", m)
}
