package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/autosql/autosql/internal/config"
	"github.com/autosql/autosql/internal/dataset"
	"github.com/autosql/autosql/internal/storage"
)

type loadUploadRequest struct {
	Key string `json:"key"`
}

func handleListUploads(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	if deps.Archiver == nil {
		writeArchiveDisabled(w, r)
		return
	}
	uploads, err := deps.Archiver.List(r.Context(), sess.Username)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_UNAVAILABLE", "failed to list archived uploads", true, map[string]any{"details": err.Error()})
		return
	}
	if uploads == nil {
		uploads = []storage.Upload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

func handleLoadUpload(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	if deps.Archiver == nil {
		writeArchiveDisabled(w, r)
		return
	}
	var req loadUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", false, map[string]any{"details": err.Error()})
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "KEY_REQUIRED", "key is required", false, nil)
		return
	}

	reader, upload, err := deps.Archiver.Open(r.Context(), sess.Username, key)
	if err != nil {
		writeArchiveLookupError(w, r, key, err)
		return
	}
	defer func() { _ = reader.Close() }()

	format, err := dataset.FormatOf(upload.Filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FILE", "supported formats are .csv, .xlsx and .parquet", false, map[string]any{"filename": upload.Filename})
		return
	}

	var source io.Reader = reader
	if cfg.Upload.MaxBytes > 0 {
		source = io.LimitReader(reader, cfg.Upload.MaxBytes+1)
	}
	data, err := io.ReadAll(source)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_UNAVAILABLE", "failed to read archived upload", true, map[string]any{"details": err.Error()})
		return
	}
	if cfg.Upload.MaxBytes > 0 && int64(len(data)) > cfg.Upload.MaxBytes {
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "archived file exceeds the size limit", false, map[string]any{"max_bytes": cfg.Upload.MaxBytes})
		return
	}

	response, ok := loadDataset(cfg, deps, w, r, sess, upload.Filename, format, data)
	if !ok {
		return
	}
	response.Archive = upload.Key
	writeJSON(w, http.StatusOK, response)
}

func handleDeleteUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	if deps.Archiver == nil {
		writeArchiveDisabled(w, r)
		return
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "KEY_REQUIRED", "query parameter key is required", false, nil)
		return
	}
	if err := deps.Archiver.Delete(r.Context(), sess.Username, key); err != nil {
		writeArchiveLookupError(w, r, key, err)
		return
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "archived upload deleted", slog.String("key", key))
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeArchiveDisabled(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_DISABLED", "upload archive is not enabled", false, nil)
}

func writeArchiveLookupError(w http.ResponseWriter, r *http.Request, key string, err error) {
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "UPLOAD_NOT_FOUND", "archived upload not found", false, map[string]any{"key": key})
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_UNAVAILABLE", "upload archive request failed", true, map[string]any{"details": err.Error()})
}
