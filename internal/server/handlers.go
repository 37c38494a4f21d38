package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// maxBodyBytes bounds request bodies, matching the poller's file limit.
const maxBodyBytes = 10 << 20

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/search", s.handleSearchGet)
	r.Post("/search", s.handleSearchPost)
	r.Post("/index", s.handleIndex)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Indexed int    `json:"indexed"`
	Uptime  int64  `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.CountActive(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Indexed: n,
		Uptime:  int64(time.Since(s.started).Seconds()),
	})
}

type statusResponse struct {
	store.Status
	LastPoll *time.Time          `json:"last_poll,omitempty"`
	Cycles   int                 `json:"poll_cycles,omitempty"`
	Queries  *telemetry.Snapshot `json:"queries,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Store.GetStatus(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := statusResponse{Status: st}
	if s.deps.Poller != nil {
		if last := s.deps.Poller.LastPoll(); !last.IsZero() {
			resp.LastPoll = &last
		}
		resp.Cycles = s.deps.Poller.Cycles()
	}
	if s.deps.Metrics != nil {
		snap := s.deps.Metrics.Snapshot()
		resp.Queries = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
	Mode     string `json:"mode"`
}

type searchResponse struct {
	Query    string                 `json:"query"`
	Results  []store.ScoredDocument `json:"results"`
	TookMS   int64                  `json:"took_ms"`
	Mode     search.Mode            `json:"mode"`
	Degraded bool                   `json:"degraded,omitempty"`
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequest{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Mode:     q.Get("mode"),
	}
	if req.Query == "" {
		req.Query = q.Get("query")
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}
	s.search(w, r, req, "missing query parameter q")
}

func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	s.search(w, r, req, "missing query field")
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, req searchRequest, missing string) {
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, missing)
		return
	}
	mode, err := search.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	resp, err := s.deps.Engine.Search(r.Context(), search.Request{
		Query:    req.Query,
		Category: req.Category,
		Limit:    req.Limit,
		Mode:     mode,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	took := time.Since(start)
	s.deps.Metrics.Record(telemetry.QueryEvent{
		Query:       req.Query,
		Mode:        string(resp.Mode),
		Category:    req.Category,
		ResultCount: len(resp.Results),
		Degraded:    resp.Degraded,
		Latency:     took,
	})

	writeJSON(w, http.StatusOK, searchResponse{
		Query:    req.Query,
		Results:  resp.Results,
		TookMS:   took.Milliseconds(),
		Mode:     resp.Mode,
		Degraded: resp.Degraded,
	})
}

type indexRequest struct {
	Category string  `json:"category"`
	Path     string  `json:"path"`
	Content  *string `json:"content"`
	Title    string  `json:"title"`
}

type indexResponse struct {
	Success bool         `json:"success"`
	ID      int64        `json:"id"`
	Hash    string       `json:"hash"`
	Action  store.Action `json:"action"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case strings.TrimSpace(req.Category) == "":
		writeError(w, http.StatusBadRequest, "missing category")
		return
	case strings.TrimSpace(req.Path) == "":
		writeError(w, http.StatusBadRequest, "missing path")
		return
	case req.Content == nil:
		writeError(w, http.StatusBadRequest, "missing content")
		return
	}

	title := req.Title
	if title == "" {
		base := path.Base(req.Path)
		title = strings.TrimSuffix(base, path.Ext(base))
	}

	res, err := s.deps.Store.UpsertDocument(r.Context(), store.UpsertInput{
		Category: req.Category,
		Path:     req.Path,
		Title:    title,
		Body:     *req.Content,
		Mtime:    time.Now().UnixMilli(),
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info("document indexed via api",
		slog.String("category", req.Category),
		slog.String("path", req.Path),
		slog.String("action", string(res.Action)))
	writeJSON(w, http.StatusOK, indexResponse{
		Success: true,
		ID:      res.ID,
		Hash:    res.Hash,
		Action:  res.Action,
	})
}

// writeStoreError maps coded errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch dierrors.GetCode(err) {
	case dierrors.ErrCodeBadRequest:
		writeError(w, http.StatusBadRequest, messageOf(err))
	case dierrors.ErrCodeConstraintViolation:
		writeError(w, http.StatusConflict, messageOf(err))
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		append([]any{slog.String("request_id", RequestID(r.Context())), slog.String("path", r.URL.Path)},
			dierrors.LogAttrs(err)...)...)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func messageOf(err error) string {
	if e, ok := dierrors.As(err); ok {
		return e.Message
	}
	return err.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
