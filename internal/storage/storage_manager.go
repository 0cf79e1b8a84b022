/**
 * Storage Manager for the alignment worker
 *
 * Coordinates PostgreSQL (jobs and lines) and Qdrant (label index).
 * Labels are written first; if the relational write then fails the job's
 * points are removed again so both stores describe the same run.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/align"
)

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	labels   *LabelIndex
}

// ResultRecord is a finished alignment to persist
type ResultRecord struct {
	JobID            string
	DocumentID       string
	PageName         string
	Result           *align.Result
	ProcessingTime   time.Duration
	ReportArtifactID string
	Metadata         map[string]interface{}
}

// NewStorageManager creates a new storage manager. An empty qdrantAddress
// disables the label index.
func NewStorageManager(postgresURL string, qdrantAddress string, qdrantCollection string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	sm := &StorageManager{postgres: postgres}
	if qdrantAddress == "" {
		return sm, nil
	}

	labels, err := NewLabelIndex(qdrantAddress, qdrantCollection)
	if err != nil {
		postgres.Close()
		return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
	}
	sm.labels = labels

	return sm, nil
}

// StoreResult persists lines, labels and the completed job row
func (sm *StorageManager) StoreResult(ctx context.Context, rec *ResultRecord) error {
	if rec == nil || rec.Result == nil {
		return fmt.Errorf("result is required")
	}

	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if sm.labels != nil {
		if err := sm.labels.DeleteJobLabels(ctx, rec.JobID); err != nil {
			return fmt.Errorf("failed to clear previous labels: %w", err)
		}
		if _, err := sm.labels.UpsertLabels(ctx, LabelPointsFromResult(rec.JobID, rec.DocumentID, rec.Result)); err != nil {
			return fmt.Errorf("failed to store labels in Qdrant: %w", err)
		}
	}

	if err := sm.postgres.ReplaceLines(ctx, rec.JobID, rec.DocumentID, LineRecordsFromResult(rec.Result)); err != nil {
		sm.rollbackLabels(rec.JobID)
		return fmt.Errorf("failed to store lines in PostgreSQL: %w", err)
	}

	if err := sm.postgres.UpdateJobStatus(ctx, CompletedJobUpdate(rec)); err != nil {
		sm.rollbackLabels(rec.JobID)
		return err
	}

	return nil
}

// rollbackLabels uses a fresh context since ctx may be the one that failed
func (sm *StorageManager) rollbackLabels(jobID string) {
	if sm.labels == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sm.labels.DeleteJobLabels(ctx, jobID)
}

// SearchSimilarLabels finds stored labels close to text
func (sm *StorageManager) SearchSimilarLabels(ctx context.Context, text string, limit int) ([]LabelMatch, error) {
	if sm.labels == nil {
		return nil, fmt.Errorf("label index is not configured")
	}
	return sm.labels.SearchSimilar(ctx, text, limit)
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// Ping checks database connectivity
func (sm *StorageManager) Ping(ctx context.Context) error {
	return sm.postgres.Ping(ctx)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.labels != nil {
		qdrantStats, err := sm.labels.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.labels != nil {
		qdErr = sm.labels.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

// LineRecordsFromResult flattens a result into one row per OCR line that
// was aligned, rejected or skipped, ordered by pattern index
func LineRecordsFromResult(res *align.Result) []LineRecord {
	records := make([]LineRecord, 0, len(res.Accepted)+len(res.Rejected)+len(res.Skipped))
	for _, a := range res.Accepted {
		records = append(records, LineRecord{
			PatternIndex: a.PatternIndex,
			Pattern:      a.Pattern,
			MatchedText:  a.MatchedText,
			Score:        a.Score,
			Start:        a.Start,
			End:          a.End,
			Status:       LineAccepted,
		})
	}
	for _, r := range res.Rejected {
		records = append(records, LineRecord{
			PatternIndex: r.PatternIndex,
			Pattern:      r.Pattern,
			MatchedText:  r.MatchedText,
			Score:        r.Score,
			Status:       LineRejected,
			Reason:       string(r.Reason),
		})
	}
	for _, i := range res.Skipped {
		records = append(records, LineRecord{PatternIndex: i, Status: LineSkipped})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].PatternIndex < records[j].PatternIndex })
	return records
}

// LabelPointsFromResult returns the index entries of the accepted lines
func LabelPointsFromResult(jobID, documentID string, res *align.Result) []LabelPoint {
	points := make([]LabelPoint, len(res.Accepted))
	for i, a := range res.Accepted {
		points[i] = LabelPoint{
			JobID:        jobID,
			DocumentID:   documentID,
			PatternIndex: a.PatternIndex,
			Pattern:      a.Pattern,
			MatchedText:  a.MatchedText,
			Score:        a.Score,
		}
	}
	return points
}

// CompletedJobUpdate summarizes a stored result as a job row
func CompletedJobUpdate(rec *ResultRecord) *JobUpdate {
	res := rec.Result
	var sum float64
	for _, a := range res.Accepted {
		sum += a.Score
	}
	mean := 0.0
	if len(res.Accepted) > 0 {
		mean = sum / float64(len(res.Accepted))
	}

	return &JobUpdate{
		JobID:            rec.JobID,
		DocumentID:       rec.DocumentID,
		PageName:         rec.PageName,
		Status:           "completed",
		Accepted:         len(res.Accepted),
		Rejected:         len(res.Rejected),
		Skipped:          res.Skipped,
		MeanScore:        mean,
		ProcessingTimeMs: rec.ProcessingTime.Milliseconds(),
		ReportArtifactID: rec.ReportArtifactID,
		Metadata:         rec.Metadata,
	}
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escape sequences JSONB rejects (\u0000)
// and blanks other control character escapes
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
