package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autosql/autosql/internal/auth"
	"github.com/autosql/autosql/internal/config"
	"github.com/autosql/autosql/internal/nl2sql"
	"github.com/autosql/autosql/internal/observability"
	"github.com/autosql/autosql/internal/session"
	"github.com/autosql/autosql/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// UploadArchiver keeps a per-user copy of uploaded source files.
type UploadArchiver interface {
	Archive(ctx context.Context, username, filename string, data []byte, contentType string) (storage.Upload, error)
	List(ctx context.Context, username string) ([]storage.Upload, error)
	Open(ctx context.Context, username, key string) (io.ReadCloser, storage.Upload, error)
	Delete(ctx context.Context, username, key string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Auth              *auth.Service
	Sessions          *session.Manager
	Translator        nl2sql.Translator
	Archiver          UploadArchiver
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		handleRegister(deps, w, r)
	})
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		handleLogin(cfg, deps, w, r)
	})

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		handleLogout(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		handleMe(deps, w, r)
	})
	protected.HandleFunc("POST /v1/dataset", func(w http.ResponseWriter, r *http.Request) {
		handleUploadDataset(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/dataset", func(w http.ResponseWriter, r *http.Request) {
		handleGetDataset(deps, w, r)
	})
	protected.HandleFunc("GET /v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		handleListUploads(deps, w, r)
	})
	protected.HandleFunc("POST /v1/uploads/load", func(w http.ResponseWriter, r *http.Request) {
		handleLoadUpload(cfg, deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteUpload(deps, w, r)
	})
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("GET /v1/result.csv", func(w http.ResponseWriter, r *http.Request) {
		handleExportResult(deps, w, r)
	})

	var protectedHandler http.Handler
	if deps.Sessions == nil {
		if deps.Logger != nil {
			deps.Logger.Error("session manager missing; protected routes disabled")
		}
		protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		})
	} else {
		protectedHandler = auth.Middleware(deps.Logger, deps.Sessions)(protected)
	}
	mux.Handle("POST /v1/auth/logout", protectedHandler)
	mux.Handle("GET /v1/auth/me", protectedHandler)
	mux.Handle("POST /v1/dataset", protectedHandler)
	mux.Handle("GET /v1/dataset", protectedHandler)
	mux.Handle("GET /v1/uploads", protectedHandler)
	mux.Handle("POST /v1/uploads/load", protectedHandler)
	mux.Handle("DELETE /v1/uploads", protectedHandler)
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("GET /v1/result.csv", protectedHandler)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{observability.TraceMiddleware}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.MetricsMiddleware)
	return chain(mux, middlewares...)
}

func CheckCompletionConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.BaseURL == "" {
			return errors.New("completion base url is not configured")
		}
		if cfg.AI.Model == "" {
			return errors.New("completion model is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Archive.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// currentSession resolves the session installed by the auth middleware.
func currentSession(deps Dependencies, r *http.Request) (*session.Session, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || deps.Sessions == nil {
		return nil, false
	}
	return deps.Sessions.Get(identity.Token)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		body.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&body).Encode(map[string]any{
			"error_code": "RESPONSE_ENCODING_FAILED",
			"message":    err.Error(),
			"retryable":  false,
			"context":    nil,
			"trace_id":   w.Header().Get("X-Trace-ID"),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func writeSessionExpired(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session", false, nil)
}
