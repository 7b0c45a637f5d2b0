package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// ChunkRef describes one chunk in a transfer manifest.
type ChunkRef struct {
	ChunkID  int    `json:"chunk_id"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// InitRequest registers a transfer manifest with the coordinator.
type InitRequest struct {
	FileID      string     `json:"file_id"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	ChunkSize   int64      `json:"chunk_size"`
	TotalChunks int        `json:"total_chunks"`
	Priority    string     `json:"priority"`
	Chunks      []ChunkRef `json:"chunks"`
}

// InitResponse is the coordinator's answer to a manifest registration.
// Status is "ok" for a fresh transfer and "resumed" when chunks from an
// earlier attempt are already on the coordinator.
type InitResponse struct {
	FileID         string `json:"file_id"`
	Status         string `json:"status"`
	ReceivedChunks int    `json:"received_chunks"`
}

// Resumed reports whether the coordinator already holds chunks for this
// transfer.
func (r *InitResponse) Resumed() bool {
	return r.Status == "resumed"
}

// UploadResponse is the coordinator's answer to a chunk upload.
type UploadResponse struct {
	Status    string  `json:"status"`
	Received  int     `json:"received"`
	Total     int     `json:"total"`
	Speed     float64 `json:"speed"`
	Progress  float64 `json:"progress"`
	Duplicate bool    `json:"duplicate"`
}

// Complete reports whether every chunk of the transfer has been received.
func (r *UploadResponse) Complete() bool {
	return r.Total > 0 && r.Received == r.Total
}

// FileInfo is one transfer in the coordinator's listing.
type FileInfo struct {
	FileID      string     `json:"file_id"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Priority    string     `json:"priority"`
}

// FileDetail extends FileInfo with chunk-level progress.
type FileDetail struct {
	FileInfo
	ChunkSize      int64   `json:"chunk_size"`
	TotalChunks    int     `json:"total_chunks"`
	ReceivedChunks int     `json:"received_chunks"`
	Progress       float64 `json:"progress"`
}

// HealthStatus is the coordinator health report.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Init registers a transfer manifest.
func (c *Client) Init(ctx context.Context, req *InitRequest) (*InitResponse, error) {
	var resp InitResponse
	if err := c.post(ctx, "/upload/init", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadChunk uploads one chunk as a multipart request. checksum is the
// lowercase hex SHA-256 of data.
func (c *Client) UploadChunk(ctx context.Context, fileID string, chunkID int, checksum string, data []byte) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for field, value := range map[string]string{
		"file_id":  fileID,
		"chunk_id": strconv.Itoa(chunkID),
		"checksum": checksum,
	} {
		if err := mw.WriteField(field, value); err != nil {
			return nil, fmt.Errorf("failed to build upload form: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("chunk", fmt.Sprintf("chunk_%d", chunkID))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/chunk", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chunk upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errorFromResponse(resp.StatusCode, respBody)
	}

	var result UploadResponse
	if err := decodeJSON(respBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Missing returns the chunk IDs the coordinator has not received yet,
// in ascending order.
func (c *Client) Missing(ctx context.Context, fileID string) ([]int, error) {
	var resp struct {
		Missing []int `json:"missing"`
	}
	if err := c.get(ctx, "/upload/missing/"+fileID, &resp); err != nil {
		return nil, err
	}
	return resp.Missing, nil
}

// Assemble asks the coordinator to concatenate the staged chunks into the
// final file. It returns the coordinator-side path of the assembled file.
func (c *Client) Assemble(ctx context.Context, fileID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
		Path   string `json:"path"`
	}
	if err := c.post(ctx, "/assemble/"+fileID, nil, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

// ListFiles returns all transfers known to the coordinator.
func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	if err := c.get(ctx, "/api/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetFile returns one transfer with chunk-level progress.
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileDetail, error) {
	var detail FileDetail
	if err := c.get(ctx, "/api/files/"+fileID, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Download streams the assembled file into w and returns the number of
// bytes written.
func (c *Client) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+fileID, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, errorFromResponse(resp.StatusCode, body)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download interrupted: %w", err)
	}
	return n, nil
}

// Health checks coordinator health. A non-nil error means the coordinator
// is unreachable or reported itself unhealthy.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.get(ctx, "/health", &status); err != nil {
		return nil, err
	}
	return &status, nil
}
