// Package httpapi exposes the assistant over HTTP: query answering and
// course analytics. Request framing only; all behaviour lives behind the
// service interface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coursechat/go-rag/tools"
)

// Service is the slice of the RAG system the handlers need.
type Service interface {
	Answer(ctx context.Context, query, sessionID string) (string, []tools.Source, string, error)
	Courses(ctx context.Context) (int, []string, error)
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type QueryResponse struct {
	Answer    string         `json:"answer"`
	Sources   []tools.Source `json:"sources"`
	SessionID string         `json:"session_id"`
}

type CoursesResponse struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewMux returns the API routes mounted on a fresh ServeMux.
func NewMux(svc Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", handleQuery(svc))
	mux.HandleFunc("GET /api/courses", handleCourses(svc))
	return mux
}

func handleQuery(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query must not be empty"})
			return
		}

		answer, sources, sessionID, err := svc.Answer(r.Context(), req.Query, req.SessionID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if sources == nil {
			sources = []tools.Source{}
		}
		writeJSON(w, http.StatusOK, QueryResponse{Answer: answer, Sources: sources, SessionID: sessionID})
	}
}

func handleCourses(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, titles, err := svc.Courses(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if titles == nil {
			titles = []string{}
		}
		writeJSON(w, http.StatusOK, CoursesResponse{TotalCourses: total, CourseTitles: titles})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
