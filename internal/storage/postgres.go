/**
 * PostgreSQL Client for the alignment worker
 *
 * Handles job status persistence and the per-line alignment table the
 * review tooling reads from.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Line statuses stored in alignment.lines
const (
	LineAccepted = "accepted"
	LineRejected = "rejected"
	LineSkipped  = "skipped"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	DocumentID       string
	PageName         string
	Status           string
	Accepted         int
	Rejected         int
	Skipped          []int
	MeanScore        float64
	ProcessingTimeMs int64
	ReportArtifactID string
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// LineRecord is one row of alignment.lines
type LineRecord struct {
	PatternIndex int
	Pattern      string
	MatchedText  string
	Score        float64
	Start        int
	End          int
	Status       string
	Reason       string
}

// sanitizeScore rounds a normalized score to 4 decimal places and clamps it
// to [0.0, 1.0] so it fits the NUMERIC(5,4) columns
func sanitizeScore(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return float64(int(score*10000+0.5)) / 10000
}

// sanitizeText drops NUL runes, which PostgreSQL text columns reject
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts the job row. Line counters are only overwritten by
// a completed update.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	skipped := make([]int64, len(update.Skipped))
	for i, s := range update.Skipped {
		skipped[i] = int64(s)
	}

	query := `
		INSERT INTO alignment.jobs (
			id, document_id, page_name, status,
			accepted_lines, rejected_lines, skipped_lines, mean_score,
			processing_time_ms, report_artifact_id, error_code, error_message,
			metadata, created_at, updated_at
		) VALUES (
			$1::uuid, NULLIF($2, ''), NULLIF($3, ''), $4,
			$5, $6, $7, $8::NUMERIC(5,4),
			NULLIF($9, 0), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			COALESCE($13::jsonb, '{}'::jsonb), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			document_id = COALESCE(EXCLUDED.document_id, alignment.jobs.document_id),
			page_name = COALESCE(EXCLUDED.page_name, alignment.jobs.page_name),
			accepted_lines = CASE WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.accepted_lines ELSE alignment.jobs.accepted_lines END,
			rejected_lines = CASE WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.rejected_lines ELSE alignment.jobs.rejected_lines END,
			skipped_lines = CASE WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.skipped_lines ELSE alignment.jobs.skipped_lines END,
			mean_score = CASE WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.mean_score ELSE alignment.jobs.mean_score END,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, alignment.jobs.processing_time_ms),
			report_artifact_id = COALESCE(EXCLUDED.report_artifact_id, alignment.jobs.report_artifact_id),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = alignment.jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,                      // $1
		update.DocumentID,                 // $2
		update.PageName,                   // $3
		update.Status,                     // $4
		update.Accepted,                   // $5
		update.Rejected,                   // $6
		pq.Array(skipped),                 // $7
		sanitizeScore(update.MeanScore),   // $8
		update.ProcessingTimeMs,           // $9
		update.ReportArtifactID,           // $10
		update.ErrorCode,                  // $11
		sanitizeText(update.ErrorMessage), // $12
		metadataJSON,                      // $13
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w", update.JobID, update.Status, err)
	}

	return nil
}

// ReplaceLines swaps the stored lines of a job for records in one
// transaction, bulk loading them with COPY
func (p *PostgresClient) ReplaceLines(ctx context.Context, jobID, documentID string, records []LineRecord) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alignment.lines WHERE job_id = $1::uuid`, jobID); err != nil {
		return fmt.Errorf("failed to clear previous lines: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("alignment", "lines",
		"job_id", "document_id", "pattern_index", "pattern", "matched_text",
		"score", "start_offset", "end_offset", "status", "reason"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			jobID, documentID, r.PatternIndex,
			sanitizeText(r.Pattern), sanitizeText(r.MatchedText),
			sanitizeScore(r.Score), r.Start, r.End, r.Status, r.Reason)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy line %d: %w", r.PatternIndex, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lines: %w", err)
	}
	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, document_id, status, accepted_lines, rejected_lines,
			skipped_lines, mean_score, processing_time_ms, error_code,
			error_message, metadata, created_at, updated_at
		FROM alignment.jobs
		WHERE id = $1::uuid
	`

	var (
		id, status              string
		documentID              sql.NullString
		accepted, rejected      int
		skipped                 pq.Int64Array
		meanScore               sql.NullFloat64
		processingTimeMs        sql.NullInt64
		errorCode, errorMessage sql.NullString
		metadataJSON            []byte
		createdAt, updatedAt    time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &documentID, &status, &accepted, &rejected,
		&skipped, &meanScore, &processingTimeMs, &errorCode,
		&errorMessage, &metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":            id,
		"status":        status,
		"acceptedLines": accepted,
		"rejectedLines": rejected,
		"skippedLines":  []int64(skipped),
		"createdAt":     createdAt,
		"updatedAt":     updatedAt,
		"metadata":      metadata,
	}

	if documentID.Valid {
		result["documentId"] = documentID.String
	}
	if meanScore.Valid {
		result["meanScore"] = meanScore.Float64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
