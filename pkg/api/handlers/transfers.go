package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/assemble"
	"github.com/sfts-dev/sfts/pkg/bufpool"
	"github.com/sfts-dev/sfts/pkg/ingest"
	"github.com/sfts-dev/sfts/pkg/model"
	"github.com/sfts-dev/sfts/pkg/registry"
)

// TransferHandler handles the transfer endpoints: manifest registration,
// chunk upload, missing-chunk queries, assembly, listing, and download.
type TransferHandler struct {
	registry  *registry.Registry
	ingestor  *ingest.Ingestor
	assembler *assemble.Assembler
	maxBody   int64
}

// NewTransferHandler creates a transfer handler. maxBody caps chunk upload
// request bodies.
func NewTransferHandler(reg *registry.Registry, ing *ingest.Ingestor, asm *assemble.Assembler, maxBody int64) *TransferHandler {
	return &TransferHandler{
		registry:  reg,
		ingestor:  ing,
		assembler: asm,
		maxBody:   maxBody,
	}
}

// Init handles POST /upload/init - manifest registration.
func (h *TransferHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req registry.RegisterRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	resp, err := h.registry.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrInvalidManifest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("manifest registration failed", "file_id", req.FileID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register manifest")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UploadChunk handles POST /upload/chunk - multipart chunk upload with form
// fields file_id, chunk_id, checksum and file part chunk.
func (h *TransferHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	for _, field := range []string{"file_id", "chunk_id", "checksum"} {
		if r.FormValue(field) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing required field: %s", field))
			return
		}
	}

	fileID := r.FormValue("file_id")
	chunkID, err := strconv.Atoi(r.FormValue("chunk_id"))
	if err != nil || chunkID < 0 {
		writeError(w, http.StatusBadRequest, "invalid chunk_id format")
		return
	}
	checksum := r.FormValue("checksum")

	part, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no chunk file provided")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read chunk data")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty chunk data")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), fileID, chunkID, checksum, data)
	if err != nil {
		h.writeIngestError(w, fileID, chunkID, err)
		return
	}

	resp := map[string]any{
		"status":   "ok",
		"received": result.Received,
		"total":    result.Total,
		"speed":    result.Speed,
		"progress": result.Progress,
	}
	if result.Duplicate {
		resp["duplicate"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TransferHandler) writeIngestError(w http.ResponseWriter, fileID string, chunkID int, err error) {
	switch {
	case errors.Is(err, model.ErrManifestNotFound):
		writeError(w, http.StatusNotFound, "unknown file_id")
	case errors.Is(err, model.ErrChunkNotFound):
		writeError(w, http.StatusBadRequest, "invalid chunk_id for this file")
	case errors.Is(err, model.ErrChecksumMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrTransferNotActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("chunk upload failed", "file_id", fileID, "chunk_id", chunkID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store chunk")
	}
}

// Missing handles GET /upload/missing/{fileID}.
func (h *TransferHandler) Missing(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	missing, err := h.registry.Missing(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, model.ErrManifestNotFound) {
			writeError(w, http.StatusNotFound, "unknown file_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list missing chunks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"missing": missing})
}

// Assemble handles POST /assemble/{fileID}.
func (h *TransferHandler) Assemble(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	result, err := h.assembler.Assemble(r.Context(), fileID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrManifestNotFound):
			writeError(w, http.StatusNotFound, "unknown file id")
		case errors.Is(err, model.ErrTransferIncomplete):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, model.ErrTransferNotActive):
			writeError(w, http.StatusConflict, err.Error())
		default:
			logger.Error("assembly failed", "file_id", fileID, "error", err)
			writeError(w, http.StatusInternalServerError, "assembly failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"path":   result.Path,
	})
}

// FileInfo is the listing entry for one transfer.
type FileInfo struct {
	FileID      string     `json:"file_id"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Priority    string     `json:"priority"`
}

// FileDetail extends FileInfo with progress for the single-file endpoint.
type FileDetail struct {
	FileInfo
	ChunkSize      int64   `json:"chunk_size"`
	TotalChunks    int     `json:"total_chunks"`
	ReceivedChunks int     `json:"received_chunks"`
	Progress       float64 `json:"progress"`
}

func fileInfoOf(p *model.Progress) FileInfo {
	return FileInfo{
		FileID:      p.FileID,
		Filename:    p.Filename,
		Size:        p.Size,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		CompletedAt: p.CompletedAt,
		Priority:    string(p.Priority),
	}
}

// ListFiles handles GET /api/files.
func (h *TransferHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	files := make([]FileInfo, 0, len(transfers))
	for _, p := range transfers {
		files = append(files, fileInfoOf(p))
	}
	writeJSON(w, http.StatusOK, files)
}

// GetFile handles GET /api/files/{fileID}.
func (h *TransferHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	p, err := h.registry.Get(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, model.ErrManifestNotFound) {
			writeError(w, http.StatusNotFound, "unknown file_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get file")
		return
	}

	writeJSON(w, http.StatusOK, FileDetail{
		FileInfo:       fileInfoOf(p),
		ChunkSize:      p.ChunkSize,
		TotalChunks:    p.TotalChunks,
		ReceivedChunks: p.ReceivedChunks,
		Progress:       p.Progress,
	})
}

// Download handles GET /download/{fileID}. The assembled file streams back
// as an attachment; transfers that are not completed answer 409.
func (h *TransferHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	p, err := h.registry.Get(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, model.ErrManifestNotFound) {
			writeError(w, http.StatusNotFound, "unknown file_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get file")
		return
	}

	path, err := h.assembler.OutputPath(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, model.ErrTransferIncomplete) {
			writeError(w, http.StatusConflict,
				fmt.Sprintf("file not ready for download (status: %s)", p.Status))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "assembled file not found; assemble first")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open assembled file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(p.Size, 10))

	if _, err := bufpool.Copy(w, f); err != nil {
		logger.Warn("download interrupted", "file_id", fileID, "error", err)
	}
}
