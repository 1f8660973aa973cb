package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sd_backend/db"
	"sd_backend/imagegen"
	"sd_backend/metrics"
)

// historyRecorder is the part of db.Repository the history observer needs.
type historyRecorder interface {
	InsertGeneration(ctx context.Context, rec db.GenerationRecord) (int64, error)
}

// generationRecord flattens a finished generate call into a history row.
func generationRecord(r imagegen.Report) db.GenerationRecord {
	rec := db.GenerationRecord{
		RequestID:      r.RequestID,
		Model:          r.Params.Model,
		Prompt:         r.Params.Prompt,
		NegativePrompt: r.Params.NegativePrompt,
		Sampler:        r.Params.Sampler,
		Width:          r.Params.Width,
		Height:         r.Params.Height,
		Steps:          r.Params.Steps,
		CFGScale:       r.Params.CFGScale,
		BatchSize:      r.Params.BatchSize,
		Seeds:          r.Seeds,
		Status:         db.StatusSuccess,
		DurationMS:     r.Metrics.TotalDuration.Milliseconds(),
		CreatedAt:      time.Now(),
	}
	for _, img := range r.Images {
		rec.ImageIDs = append(rec.ImageIDs, img.ID)
	}
	if r.Err != nil {
		rec.Status = db.StatusError
		rec.ErrorKind = imagegen.Kind(r.Err)
		rec.ErrorMessage = r.Err.Error()
	}
	return rec
}

// historyObserver writes one row per generate call. The insert is detached
// from the request context so a client disconnect does not lose the row.
func historyObserver(repo historyRecorder, logger *zap.Logger) imagegen.Observer {
	return func(ctx context.Context, r imagegen.Report) {
		if _, err := repo.InsertGeneration(context.WithoutCancel(ctx), generationRecord(r)); err != nil {
			logger.Warn("failed to record generation history",
				zap.String("request_id", r.RequestID),
				zap.Error(err))
		}
	}
}

// taskRecord converts a finished generate call into a metrics task.
func taskRecord(r imagegen.Report) metrics.TaskRecord {
	end := time.Now()
	task := metrics.TaskRecord{
		ID:        r.RequestID,
		Type:      metrics.TaskTypeGenerate,
		Model:     r.Params.Model,
		Images:    len(r.Images),
		Status:    metrics.TaskStatusSuccess,
		StartTime: end.Add(-r.Metrics.TotalDuration),
		EndTime:   end,
		Duration:  r.Metrics.TotalDuration,
	}
	if r.Err != nil {
		task.Status = metrics.TaskStatusError
		task.ErrorKind = imagegen.Kind(r.Err)
		task.ErrorMsg = r.Err.Error()
	}
	return task
}

func metricsObserver(collector metrics.MetricsCollector) imagegen.Observer {
	return func(ctx context.Context, r imagegen.Report) {
		collector.RecordTask(taskRecord(r))
	}
}
