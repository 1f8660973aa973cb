package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Generation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultHistoryLimit is used when a query passes a non-positive limit.
const DefaultHistoryLimit = 20

// MaxHistoryLimit caps a single history query.
const MaxHistoryLimit = 500

// GenerationRecord is one row of generation_history: a single generate
// call, successful or not.
type GenerationRecord struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"requestId"`
	Model          string    `json:"model"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negativePrompt,omitempty"`
	Sampler        string    `json:"sampler"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Steps          int       `json:"steps"`
	CFGScale       float64   `json:"cfgScale"`
	BatchSize      int       `json:"batchSize"`
	Seeds          []int64   `json:"seeds"`
	ImageIDs       []string  `json:"imageIds"`
	Status         string    `json:"status"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	DurationMS     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Repository reads and writes generation history.
//
// When an AsyncWriter is attached and running, inserts are queued; if the
// queue is full they fall back to a synchronous write.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
}

// NewRepository creates a repository that writes synchronously until
// AttachWriter is called.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// AttachWriter routes inserts through w. The writer should be built with
// the repository's AsyncWriteHandler.
func (r *Repository) AttachWriter(w *AsyncWriter) {
	r.asyncWriter = w
}

// asyncInsertOp is the payload queued on the AsyncWriter.
type asyncInsertOp struct {
	query string
	args  []interface{}
}

const insertGenerationSQL = `
	INSERT INTO generation_history (
		request_id, model, prompt, negative_prompt, sampler,
		width, height, steps, cfg_scale, batch_size,
		seeds, image_ids, status, error_kind, error_message,
		duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertGeneration records a generate call. It returns the row id, or 0
// when the write was queued.
func (r *Repository) InsertGeneration(ctx context.Context, rec GenerationRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	seeds, err := json.Marshal(nonNilSeeds(rec.Seeds))
	if err != nil {
		return 0, fmt.Errorf("failed to encode seeds: %w", err)
	}
	imageIDs, err := json.Marshal(nonNilIDs(rec.ImageIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to encode image ids: %w", err)
	}

	args := []interface{}{
		rec.RequestID,
		rec.Model,
		rec.Prompt,
		nullString(rec.NegativePrompt),
		rec.Sampler,
		rec.Width,
		rec.Height,
		rec.Steps,
		rec.CFGScale,
		rec.BatchSize,
		string(seeds),
		string(imageIDs),
		rec.Status,
		nullString(rec.ErrorKind),
		nullString(rec.ErrorMessage),
		rec.DurationMS,
		rec.CreatedAt.Unix(),
	}

	if r.asyncWriter != nil && r.asyncWriter.Write(asyncInsertOp{query: insertGenerationSQL, args: args}) {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, insertGenerationSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// AsyncWriteHandler executes queued inserts.
func (r *Repository) AsyncWriteHandler() WriteHandler {
	return func(ctx context.Context, op WriteOperation) error {
		insertOp, ok := op.Data.(asyncInsertOp)
		if !ok {
			return fmt.Errorf("invalid operation type %T: expected asyncInsertOp", op.Data)
		}
		_, err := r.db.ExecContext(ctx, insertOp.query, insertOp.args...)
		return err
	}
}

const selectGenerationColumns = `
	SELECT id, request_id, model, prompt, COALESCE(negative_prompt, ''), sampler,
		   width, height, steps, cfg_scale, batch_size,
		   seeds, image_ids, status, COALESCE(error_kind, ''), COALESCE(error_message, ''),
		   duration_ms, created_at
	FROM generation_history`

// QueryRecentGenerations returns up to limit records, newest first.
func (r *Repository) QueryRecentGenerations(ctx context.Context, limit int) ([]GenerationRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, selectGenerationColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation history: %w", err)
	}
	return scanGenerations(rows)
}

// QueryGenerationsByRequestID returns the records of one request.
func (r *Repository) QueryGenerationsByRequestID(ctx context.Context, requestID string) ([]GenerationRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectGenerationColumns+` WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation history: %w", err)
	}
	return scanGenerations(rows)
}

// CountGenerations returns the number of history rows.
func (r *Repository) CountGenerations(ctx context.Context) (int64, error) {
	row, err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generation_history")
	if err != nil {
		return 0, err
	}
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count generation history: %w", err)
	}
	return count, nil
}

func scanGenerations(rows *sql.Rows) ([]GenerationRecord, error) {
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var (
			rec       GenerationRecord
			seeds     string
			imageIDs  string
			createdAt int64
		)
		err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Model,
			&rec.Prompt,
			&rec.NegativePrompt,
			&rec.Sampler,
			&rec.Width,
			&rec.Height,
			&rec.Steps,
			&rec.CFGScale,
			&rec.BatchSize,
			&seeds,
			&imageIDs,
			&rec.Status,
			&rec.ErrorKind,
			&rec.ErrorMessage,
			&rec.DurationMS,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation history row: %w", err)
		}
		if err := json.Unmarshal([]byte(seeds), &rec.Seeds); err != nil {
			return nil, fmt.Errorf("failed to decode seeds of row %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(imageIDs), &rec.ImageIDs); err != nil {
			return nil, fmt.Errorf("failed to decode image ids of row %d: %w", rec.ID, err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation history rows: %w", err)
	}
	return records, nil
}

// nullString stores empty strings as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return sql.NullString{}
	}
	return s
}

func nonNilSeeds(s []int64) []int64 {
	if s == nil {
		return []int64{}
	}
	return s
}

func nonNilIDs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
