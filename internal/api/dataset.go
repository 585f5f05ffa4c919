package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/autosql/autosql/internal/config"
	"github.com/autosql/autosql/internal/dataset"
	"github.com/autosql/autosql/internal/observability"
	"github.com/autosql/autosql/internal/session"
)

const uploadFormField = "file"

type datasetResponse struct {
	Table    string           `json:"table"`
	Filename string           `json:"filename"`
	Format   string           `json:"format"`
	Columns  []dataset.Column `json:"columns"`
	RowCount int              `json:"row_count"`
	Preview  [][]any          `json:"preview"`
	LoadedAt time.Time        `json:"loaded_at"`
	Archive  string           `json:"archive_key,omitempty"`
}

func handleUploadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}

	maxBytes := cfg.Upload.MaxBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "uploaded file exceeds the size limit", false, map[string]any{"max_bytes": maxBytes})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	format, err := dataset.FormatOf(header.Filename)
	if err != nil {
		observability.ObserveUpload("unknown", observability.OutcomeInvalidInput, 0)
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FILE", "supported formats are .csv, .xlsx and .parquet", false, map[string]any{"filename": header.Filename})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_READ_FAILED", "failed to read uploaded file", true, map[string]any{"details": err.Error()})
		return
	}

	response, ok := loadDataset(cfg, deps, w, r, sess, header.Filename, format, data)
	if !ok {
		return
	}
	if deps.Archiver != nil {
		upload, err := deps.Archiver.Archive(r.Context(), sess.Username, header.Filename, data, header.Header.Get("Content-Type"))
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "upload archive failed",
					slog.String("filename", header.Filename),
					slog.String("error", err.Error()),
				)
			}
		} else {
			response.Archive = upload.Key
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// loadDataset parses data and replaces the session's user_data table with it.
// On failure the error response has already been written.
func loadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request, sess *session.Session, filename, format string, data []byte) (datasetResponse, bool) {
	table, err := dataset.Parse(filename, bytes.NewReader(data))
	if err != nil {
		observability.ObserveUpload(format, observability.OutcomeInvalidInput, 0)
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_PARSE_FAILED", "failed to parse uploaded file", false, map[string]any{"details": err.Error(), "filename": filename})
		return datasetResponse{}, false
	}

	previewRows := cfg.Upload.PreviewRows
	if previewRows <= 0 {
		previewRows = 5
	}
	info := session.DatasetInfo{
		Filename: filename,
		Format:   format,
		Columns:  table.Columns,
		RowCount: len(table.Rows),
		Preview:  table.Head(previewRows),
		LoadedAt: time.Now().UTC(),
	}
	if _, err := sess.LoadDataset(r.Context(), table, info); err != nil {
		observability.ObserveUpload(format, observability.OutcomeExecution, 0)
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LOAD_FAILED", "failed to load dataset into the query engine", true, map[string]any{"details": err.Error()})
		return datasetResponse{}, false
	}
	observability.ObserveUpload(format, observability.OutcomeOK, len(table.Rows))

	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "dataset loaded",
			slog.String("filename", filename),
			slog.String("format", format),
			slog.Int("columns", len(table.Columns)),
			slog.Int("rows", len(table.Rows)),
		)
	}
	return newDatasetResponse(info), true
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	info, ok := sess.Dataset()
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_DATASET", "no dataset has been uploaded in this session", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, newDatasetResponse(info))
}

func newDatasetResponse(info session.DatasetInfo) datasetResponse {
	preview := info.Preview
	if preview == nil {
		preview = [][]any{}
	}
	return datasetResponse{
		Table:    dataset.TableName,
		Filename: info.Filename,
		Format:   info.Format,
		Columns:  info.Columns,
		RowCount: info.RowCount,
		Preview:  preview,
		LoadedAt: info.LoadedAt,
	}
}
