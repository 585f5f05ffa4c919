package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/autosql/autosql/internal/nl2sql"
	"github.com/autosql/autosql/internal/observability"
	"github.com/autosql/autosql/internal/query"
	"github.com/autosql/autosql/internal/session"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string         `json:"question"`
	SQL      string         `json:"sql"`
	Raw      string         `json:"raw"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Columns  []string       `json:"columns"`
	Rows     [][]any        `json:"rows"`
	Stats    map[string]any `json:"stats"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "completion backend is not configured", false, nil)
		return
	}
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}

	var request askRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	columns := sess.ColumnNames()
	if len(columns) == 0 {
		writeError(r.Context(), w, http.StatusConflict, "DATASET_REQUIRED", "upload a dataset before asking questions", false, nil)
		return
	}

	started := time.Now()
	translation, err := deps.Translator.Translate(r.Context(), nl2sql.Request{Columns: columns, Question: request.Question})
	elapsed := time.Since(started)
	if err != nil {
		kind, isCompletion := nl2sql.KindOf(err)
		if !isCompletion {
			observability.ObserveTranslation(translation.Provider, observability.OutcomeInvalidInput)
			writeError(r.Context(), w, http.StatusBadRequest, "TRANSLATE_FAILED", err.Error(), false, nil)
			return
		}
		observability.ObserveCompletion(translation.Provider, elapsed, string(kind))
		observability.ObserveTranslation(translation.Provider, observability.OutcomeCompletion)
		extra := map[string]any{
			"kind":      string(kind),
			"fail_soft": nl2sql.FailSoftText(err),
			"provider":  translation.Provider,
			"model":     translation.Model,
		}
		var completionErr *nl2sql.CompletionError
		if errors.As(err, &completionErr) && completionErr.StatusCode != 0 {
			extra["status_code"] = completionErr.StatusCode
		}
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "completion failed",
				slog.String("provider", translation.Provider),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
		writeError(r.Context(), w, http.StatusBadGateway, "COMPLETION_FAILED", "completion request failed", true, extra)
		return
	}
	observability.ObserveCompletion(translation.Provider, elapsed, "")

	if translation.SQL == "" {
		observability.ObserveTranslation(translation.Provider, observability.OutcomeNoSQL)
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "NO_SQL_EXTRACTED", "no SQL statement found in the completion", false, map[string]any{
			"raw": translation.Raw,
		})
		return
	}

	result, ok := executeForSession(deps, w, r, sess, translation.SQL)
	if !ok {
		observability.ObserveTranslation(translation.Provider, observability.OutcomeExecution)
		return
	}
	observability.ObserveTranslation(translation.Provider, observability.OutcomeOK)

	writeJSON(w, http.StatusOK, askResponse{
		Question: request.Question,
		SQL:      translation.SQL,
		Raw:      translation.Raw,
		Provider: translation.Provider,
		Model:    translation.Model,
		Columns:  result.Columns,
		Rows:     result.Rows,
		Stats:    resultStats(result, elapsed),
	})
}

// executeForSession runs sqlText and writes the error response itself on
// failure.
func executeForSession(deps Dependencies, w http.ResponseWriter, r *http.Request, sess *session.Session, sqlText string) (query.Result, bool) {
	result, engineName, err := sess.Execute(r.Context(), sqlText)
	if err != nil {
		if errors.Is(err, query.ErrNoDataset) {
			writeError(r.Context(), w, http.StatusConflict, "DATASET_REQUIRED", "upload a dataset before running queries", false, nil)
			return query.Result{}, false
		}
		observability.ObserveQuery(engineName, observability.OutcomeExecution, 0)
		if deps.Logger != nil {
			deps.Logger.InfoContext(r.Context(), "query execution failed",
				slog.String("engine", engineName),
				slog.String("error", err.Error()),
			)
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", err.Error(), false, map[string]any{
			"sql": sqlText,
		})
		return query.Result{}, false
	}
	observability.ObserveQuery(engineName, observability.OutcomeOK, result.Duration)
	return result, true
}

func resultStats(result query.Result, completion time.Duration) map[string]any {
	stats := map[string]any{
		"row_count":   len(result.Rows),
		"truncated":   result.Truncated,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if completion > 0 {
		stats["completion_ms"] = completion.Milliseconds()
	}
	return stats
}
