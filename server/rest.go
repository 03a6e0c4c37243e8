package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-pkgz/rest"

	"github.com/umputun/commentscope/pkg/analyzer"
	"github.com/umputun/commentscope/pkg/domain"
)

// quotaExceededMessage is shown to callers who used up their monthly quota
const quotaExceededMessage = "You have used all free analyses for this month, please upgrade to continue."

// analyzeRequest is the body of POST /api/analyze
type analyzeRequest struct {
	VideoID     string `json:"videoId"`
	AccessToken string `json:"accessToken"`
	Count       int    `json:"count"`
	Language    string `json:"language"`
}

// healthHandler reports that the service is up
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, rest.JSON{
		"status":  "ok",
		"message": "YouTube Comment Analyzer Backend is running",
		"version": s.version,
	})
}

// analyzeHandler charges the caller and runs the analysis of a video
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		renderJSON(w, r, http.StatusUnauthorized, rest.JSON{"error": "Unauthorized: No token provided"})
		return
	}

	var req analyzeRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		renderJSON(w, r, http.StatusBadRequest, rest.JSON{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.VideoID == "" {
		renderJSON(w, r, http.StatusBadRequest, rest.JSON{"error": "videoId is required"})
		return
	}
	if req.AccessToken == "" {
		renderJSON(w, r, http.StatusBadRequest, rest.JSON{"error": "accessToken is required"})
		return
	}

	reqID := requestIDFrom(r.Context())
	log.Printf("[INFO] [%s] %s (%s) requests analysis of %s", reqID, caller.Email, caller.ID, req.VideoID)

	res, err := s.analyzer.Run(r.Context(), analyzer.Request{
		ID:          reqID,
		Caller:      caller,
		VideoID:     req.VideoID,
		AccessToken: req.AccessToken,
		MaxComments: s.count(req.Count),
		Language:    s.language(req.Language),
	})
	if err != nil {
		s.renderAnalysisError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, res)
}

// quotaStatusHandler returns the caller's quota without charging it
func (s *Server) quotaStatusHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		renderJSON(w, r, http.StatusUnauthorized, rest.JSON{"error": "Unauthorized: No token provided"})
		return
	}

	snap, err := s.quota.Status(r.Context(), caller)
	if err != nil {
		log.Printf("[ERROR] [%s] quota status of %s failed: %v", requestIDFrom(r.Context()), caller.ID, err)
		renderJSON(w, r, http.StatusInternalServerError, rest.JSON{"error": "Database Error", "details": err.Error()})
		return
	}
	log.Printf("[DEBUG] quota status of %s: %d/%d, remaining %d", caller.ID, snap.UsageCount, snap.QuotaLimit, snap.Remaining)
	renderJSON(w, r, http.StatusOK, snap)
}

// renderAnalysisError maps analysis failures to status codes
func (s *Server) renderAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		renderJSON(w, r, http.StatusForbidden, rest.JSON{
			"error":        "Quota Exceeded",
			"message":      quotaExceededMessage,
			"isQuotaError": true,
		})
	case errors.Is(err, domain.ErrPersistence):
		renderJSON(w, r, http.StatusInternalServerError, rest.JSON{"error": "Database Error", "details": cause(err)})
	case errors.Is(err, domain.ErrUpstreamFetch):
		renderJSON(w, r, http.StatusUnauthorized, rest.JSON{"error": "YouTube API Error", "details": cause(err)})
	default:
		renderJSON(w, r, http.StatusInternalServerError, rest.JSON{"error": "Analysis failed", "details": cause(err)})
	}
}

// cause strips the phase wrapper from analysis errors
func cause(err error) string {
	var perr *analyzer.PhaseError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}

// count applies default and upper bound to the requested comment count
func (s *Server) count(requested int) int {
	if requested <= 0 {
		return s.limits.DefaultCount
	}
	return min(requested, s.limits.MaxComments)
}

func (s *Server) language(requested string) string {
	if requested == "" {
		return s.limits.DefaultLanguage
	}
	return requested
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}
