/**
 * Artifact Client for the alignment worker
 *
 * Talks to the FileProcess API in both directions:
 * - inputs: page transcriptions, predictions and images stored as artifacts
 *   are resolved to their download URL and fetched
 * - outputs: the review report of each page (accepted, rejected and skipped
 *   lines) is uploaded so the review UI can show lines that still need a
 *   human label
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/alignment-worker/internal/logging"
)

// SourceService identifies this worker to the artifact store
const SourceService = "alignment-worker"

// ArtifactClient handles communication with the FileProcess API for artifact storage
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ArtifactUploadRequest represents a file upload request
type ArtifactUploadRequest struct {
	FileBuffer []byte                 // File content
	Filename   string                 // Artifact filename
	MimeType   string                 // MIME type (e.g., application/json)
	SourceID   string                 // Source identifier (the job ID)
	TTLDays    int                    // Time-to-live in days (0 = use 36500 for ~100 years)
	Metadata   map[string]interface{} // Additional metadata (documentId, counts, ...)
}

// Artifact is the stored artifact as reported by the API
type Artifact struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	FileSize       int64  `json:"file_size"`
	MimeType       string `json:"mime_type"`
	StorageBackend string `json:"storage_backend"` // postgres_buffer, minio, google_drive
	DownloadURL    string `json:"download_url"`    // Presigned URL or shareable link
	CreatedAt      string `json:"created_at"`
	ExpiresAt      string `json:"expires_at,omitempty"`
}

// ArtifactResponse represents the API envelope around an artifact
type ArtifactResponse struct {
	Success  bool     `json:"success"`
	Artifact Artifact `json:"artifact,omitempty"`
	Error    string   `json:"error,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// NewArtifactClient creates a new artifact client
func NewArtifactClient(baseURL string, logger *logging.Logger) *ArtifactClient {
	if logger == nil {
		logger = logging.NewLogger("ArtifactClient")
	}
	return &ArtifactClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// HealthCheck verifies the FileProcess API is available
func (c *ArtifactClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("artifact service health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// UploadArtifact uploads a file to permanent storage
func (c *ArtifactClient) UploadArtifact(ctx context.Context, req *ArtifactUploadRequest) (*Artifact, error) {
	if len(req.FileBuffer) == 0 {
		return nil, fmt.Errorf("file buffer is required: received empty buffer")
	}

	if req.Filename == "" {
		return nil, fmt.Errorf("filename is required: received empty string")
	}

	if req.SourceID == "" {
		return nil, fmt.Errorf("source_id is required: identifies the job creating this artifact")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file part: %w", err)
	}
	if _, err := part.Write(req.FileBuffer); err != nil {
		return nil, fmt.Errorf("failed to write file data to form: %w", err)
	}

	ttlDays := req.TTLDays
	if ttlDays <= 0 {
		ttlDays = 36500
	}
	fields := map[string]string{
		"source_service": SourceService,
		"source_id":      req.SourceID,
		"ttl_days":       fmt.Sprintf("%d", ttlDays),
	}
	if req.MimeType != "" {
		fields["mime_type"] = req.MimeType
	}
	if len(req.Metadata) > 0 {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
		}
		fields["metadata"] = string(metadataJSON)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	// FileProcess API mounts routes at /fileprocess/api/*
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/fileprocess/api/files/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to artifact storage failed after %v: %w", time.Since(startTime), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artifact upload failed with HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result ArtifactResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse artifact upload response: %w (raw response: %s)", err, string(respBody))
	}

	if !result.Success {
		return nil, fmt.Errorf("artifact upload returned success=false: %s", result.Error)
	}

	if result.Artifact.ID == "" {
		return nil, fmt.Errorf("artifact upload succeeded but returned empty artifact ID")
	}

	c.logger.Info("Artifact uploaded",
		"id", result.Artifact.ID,
		"filename", req.Filename,
		"storage", result.Artifact.StorageBackend,
		"size", len(req.FileBuffer),
		"duration", time.Since(startTime).String())

	return &result.Artifact, nil
}

// UploadReport stores a page review report as a JSON artifact
func (c *ArtifactClient) UploadReport(ctx context.Context, jobID, documentID string, report []byte) (*Artifact, error) {
	return c.UploadArtifact(ctx, &ArtifactUploadRequest{
		FileBuffer: report,
		Filename:   fmt.Sprintf("%s.alignment.json", documentID),
		MimeType:   "application/json",
		SourceID:   jobID,
		Metadata: map[string]interface{}{
			"documentId": documentID,
			"kind":       "alignment-review",
		},
	})
}

// GetArtifactByID retrieves artifact metadata by ID
func (c *ArtifactClient) GetArtifactByID(ctx context.Context, artifactID string) (*Artifact, error) {
	if artifactID == "" {
		return nil, fmt.Errorf("artifact ID is required")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/fileprocess/api/files/"+artifactID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get artifact request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get artifact returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result ArtifactResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse artifact response: %w", err)
	}
	if result.Artifact.DownloadURL == "" {
		return nil, fmt.Errorf("artifact %s has no download URL", artifactID)
	}

	return &result.Artifact, nil
}

// Download resolves an artifact and returns its content
func (c *ArtifactClient) Download(ctx context.Context, artifactID string) ([]byte, error) {
	artifact, err := c.GetArtifactByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	downloadURL := artifact.DownloadURL
	if strings.HasPrefix(downloadURL, "/") {
		downloadURL = c.baseURL + downloadURL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact %s: %w", artifactID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artifact download returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", artifactID, err)
	}

	c.logger.Debug("Artifact downloaded", "id", artifactID, "size", len(data))
	return data, nil
}
