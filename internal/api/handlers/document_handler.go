package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	middleware "github.com/fayaebeb/mirai-mod/internal/api/middlewares"
	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/core/ingestion_engine"
	"github.com/fayaebeb/mirai-mod/internal/models"
	"github.com/fayaebeb/mirai-mod/internal/services"
)

// multipart parts above this size spill to temporary files
const multipartMemory = 32 << 20

// UploadLimits bounds a single upload request.
type UploadLimits struct {
	MaxBytes int64
	MaxFiles int
}

type DocumentHandler struct {
	db       core.DbClient
	ingestor ingestion_engine.Ingestor
	deletion *services.DeletionService
	limits   UploadLimits
	logger   *zap.Logger
}

func NewDocumentHandler(db core.DbClient, ing ingestion_engine.Ingestor, deletion *services.DeletionService, limits UploadLimits, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{db: db, ingestor: ing, deletion: deletion, limits: limits, logger: logger}
}

type uploadResponse struct {
	Files []models.UploadResult `json:"files"`
}

// Upload admits a multipart batch under the "files" field. Each accepted
// file is listed as processing before the response is written; extraction
// continues in the background.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.limits.MaxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	switch {
	case len(headers) == 0:
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	case len(headers) > h.limits.MaxFiles:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("At most %d files per upload", h.limits.MaxFiles))
		return
	}

	files := make([]ingestion_engine.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			h.logger.Error("read upload part failed", zap.String("filename", fh.Filename), zap.Error(err))
			writeError(w, http.StatusBadRequest, "could not read "+fh.Filename)
			return
		}
		files = append(files, ingestion_engine.UploadedFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	// a client-sent sessionId is ignored; the account decides the session
	sessionID := core.SessionIDFor(id.UserID)
	results := h.ingestor.Submit(r.Context(), id.UserID, sessionID, files)

	h.logger.Info("upload admitted",
		zap.Int64("user_id", id.UserID), zap.String("session_id", sessionID), zap.Int("files", len(results)))
	writeJSON(w, http.StatusOK, uploadResponse{Files: results})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ListFiles returns every file record, newest first.
func (h *DocumentHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.db.ListFiles(r.Context())
	if err != nil {
		h.logger.Error("list files failed", zap.Error(err))
		writeServiceError(w, err, "retrieve file history")
		return
	}
	if files == nil {
		files = []models.FileRecord{}
	}
	writeJSON(w, http.StatusOK, files)
}

type deletedFileResponse struct {
	*models.FileRecord
	Outcome models.DeleteOutcome `json:"outcome"`
}

func (h *DocumentHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(r, "fileId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid file ID")
		return
	}

	rec, outcome, err := h.deletion.DeleteFile(r.Context(), fileID)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		writeServiceError(w, err, "delete file")
		return
	}
	writeJSON(w, http.StatusOK, deletedFileResponse{FileRecord: rec, Outcome: outcome})
}
