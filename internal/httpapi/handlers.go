package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/floegence/forge/internal/enhancer"
	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/grimoire"
	"github.com/floegence/forge/internal/history"
	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/sanitizer"
	"github.com/floegence/forge/internal/validator"
)

type healthResp struct {
	Status       string `json:"status"`
	UptimeMs     int64  `json:"uptimeMs"`
	RequestCount int64  `json:"requestCount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResp{
		Status:       "ok",
		UptimeMs:     time.Since(s.startedAt).Milliseconds(),
		RequestCount: s.requestCount.Load(),
	})
}

type modelsResp struct {
	Providers map[string]bool `json:"providers"`
	Default   string          `json:"default"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := modelsResp{Providers: map[string]bool{}}
	if s.router != nil {
		resp.Providers = s.router.Providers()
		resp.Default = s.router.DefaultProvider()
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	Intent           string   `json:"intent"`
	Style            string   `json:"style"`
	Language         string   `json:"language"`
	Model            string   `json:"model"`
	Iterate          bool     `json:"iterate"`
	Threshold        float64  `json:"threshold"`
	Patience         int      `json:"patience"`
	Sanitize         bool     `json:"sanitize"`
	Persist          bool     `json:"persist"`
	HistoryTags      []string `json:"historyTags"`
	InscribeGrimoire bool     `json:"inscribeGrimoire"`
	GrimoireTags     []string `json:"grimoireTags"`
	GrimoireCategory string   `json:"grimoireCategory"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Intent) == "" {
		writeError(w, http.StatusBadRequest, "missing intent")
		return
	}

	opts := pipeline.Options{
		Style:            enhancer.StylePreset(req.Style),
		Language:         req.Language,
		Model:            req.Model,
		Iterate:          req.Iterate,
		Threshold:        req.Threshold,
		Patience:         req.Patience,
		Persist:          req.Persist,
		HistoryTags:      req.HistoryTags,
		InscribeGrimoire: req.InscribeGrimoire,
		GrimoireTags:     req.GrimoireTags,
		GrimoireCategory: req.GrimoireCategory,
		OnProgress:       s.forwardProgress,
	}
	if req.Sanitize {
		opts.Sanitize = &sanitizer.Options{}
	}

	result, err := s.pipeline.Run(r.Context(), req.Intent, opts)
	if err != nil {
		writeError(w, statusForGenerateError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"html":           result.HTML,
		"score":          result.Score,
		"validation":     result.Validation,
		"model":          result.Model,
		"iterations":     result.Iterations,
		"durationMs":     result.DurationMs,
		"enhancedPrompt": result.EnhancedPrompt,
	})
}

// statusForGenerateError mirrors the CLI's exit-code discrimination
// (cmd/forge/generate.go) at the HTTP layer: a provider that's missing
// or unreachable is a server-configuration problem (501), everything
// else is a generic generation failure (500).
func statusForGenerateError(err error) int {
	if errors.Is(err, forgeerr.ErrNotConfigured) || errors.Is(err, forgeerr.ErrAllProvidersFailed) {
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) forwardProgress(e pipeline.Event) {
	if s.progress == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":    e.Type,
		"stage":   e.Stage,
		"prompt":  e.Prompt,
		"score":   e.Score,
		"message": e.Message,
	})
	if err != nil {
		return
	}
	s.progress.Send(e.Type, string(payload), "")
}

type validateRequest struct {
	HTML string `json:"html"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	writeJSON(w, http.StatusOK, validator.Validate(req.HTML))
}

func (s *Server) handleGrimoireCollection(w http.ResponseWriter, r *http.Request) {
	if s.grimoire == nil {
		writeError(w, http.StatusNotImplemented, "grimoire not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		opts := grimoire.SearchOptions{Query: q.Get("q"), Tag: q.Get("tag")}
		if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
			opts.Limit = limit
		}
		results, err := s.grimoire.Search(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, results)
	case http.MethodPost:
		var req struct {
			Prompt   string   `json:"prompt"`
			Tags     []string `json:"tags"`
			Category string   `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		entry, err := s.grimoire.Inscribe(req.Prompt, req.Tags, req.Category, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGrimoireItem(w http.ResponseWriter, r *http.Request) {
	if s.grimoire == nil {
		writeError(w, http.StatusNotImplemented, "grimoire not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/grimoire/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	entry, found, err := s.grimoire.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "history not configured")
		return
	}
	q := r.URL.Query()
	opts := history.ListOptions{Provider: q.Get("provider")}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = limit
	}
	entries, err := s.history.List(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusNotImplemented, "progress channel not configured")
		return
	}
	s.progress.Handler(w, r)
}
