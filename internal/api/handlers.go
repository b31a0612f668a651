package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/ingest"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/pipeline"
	"github.com/ppiankov/rectify/internal/report"
	"github.com/ppiankov/rectify/internal/worker"
)

// CorrectRequest asks for one query to be answered or an answer to be checked
type CorrectRequest struct {
	Query          string `json:"query"`
	OriginalAnswer string `json:"original_answer,omitempty"`
	Context        string `json:"context,omitempty"`
}

// CorrectResponse wraps one finished run
type CorrectResponse struct {
	RequestID      string             `json:"request_id"`
	Status         string             `json:"status"` // completed, failed
	Result         *model.PipelineRun `json:"result"`
	Error          string             `json:"error,omitempty"`
	ProcessingTime float64            `json:"processing_time"` // seconds
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    time.Time          `json:"completed_at"`
}

// BatchRequest carries several correction requests
type BatchRequest struct {
	Requests []CorrectRequest `json:"requests"`
	Context  string           `json:"context,omitempty"` // default for requests without one
}

// BatchItem is the outcome of one batch entry
type BatchItem struct {
	Index   int                `json:"index"`
	Success bool               `json:"success"`
	Result  *model.PipelineRun `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// BatchResponse is returned by /correct/batch
type BatchResponse struct {
	BatchID       string         `json:"batch_id"`
	TotalRequests int            `json:"total_requests"`
	Successful    int            `json:"successful"`
	Failed        int            `json:"failed"`
	Results       []BatchItem    `json:"results"`
	Summary       report.Summary `json:"summary"`
}

// KnowledgeRequest adds raw documents to the knowledge base
type KnowledgeRequest struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status     string          `json:"status"` // healthy, unhealthy
	Timestamp  time.Time       `json:"timestamp"`
	Version    string          `json:"version"`
	SystemInfo pipeline.Status `json:"system_info"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "rectify",
		"message": "hallucination detection and answer correction API",
		"version": s.version,
		"endpoints": []string{
			"GET /health", "GET /system/status", "GET /metrics",
			"POST /correct", "POST /correct/batch", "POST /knowledge/add",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Status(r.Context())

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  s.now().UTC(),
		Version:    s.version,
		SystemInfo: st,
	}
	code := http.StatusOK
	if st.Status != "running" {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.pipeline.Status(r.Context()))
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	created := s.now()
	var run *model.PipelineRun
	if req.OriginalAnswer != "" {
		run = s.pipeline.RunWithAnswer(r.Context(), req.Query, req.OriginalAnswer, req.Context)
	} else {
		run = s.pipeline.Run(r.Context(), req.Query, req.Context)
	}
	completed := s.now()

	resp := CorrectResponse{
		RequestID:      middleware.GetReqID(r.Context()),
		Status:         "completed",
		Result:         run,
		ProcessingTime: completed.Sub(created).Seconds(),
		CreatedAt:      created.UTC(),
		CompletedAt:    completed.UTC(),
	}
	if !run.Success {
		resp.Status = "failed"
		resp.Error = fmt.Sprintf("stage %s: %s", run.FailedStage, run.Error)
		s.logger.Warn("correction failed",
			zap.String("run_id", run.ID),
			zap.String("stage", run.FailedStage),
			zap.String("error", run.Error))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCorrectBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Requests) == 0 {
		respondError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}
	if len(req.Requests) > s.maxBatch {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d requests per batch", s.maxBatch))
		return
	}

	reqs := make([]worker.Request, len(req.Requests))
	for i, cr := range req.Requests {
		if strings.TrimSpace(cr.Query) == "" {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("requests[%d]: query is required", i))
			return
		}
		ctxText := cr.Context
		if ctxText == "" {
			ctxText = req.Context
		}
		reqs[i] = worker.Request{Query: cr.Query, Answer: cr.OriginalAnswer, Context: ctxText}
	}

	runs := s.pipeline.BatchRequests(r.Context(), reqs)

	resp := BatchResponse{
		BatchID:       "batch_" + uuid.NewString(),
		TotalRequests: len(reqs),
		Results:       make([]BatchItem, 0, len(reqs)),
		Summary:       report.Summarize(runs, s.now().UTC()),
	}
	for i := range reqs {
		item := BatchItem{Index: i}
		if i < len(runs) && runs[i] != nil {
			item.Result = runs[i]
			item.Success = runs[i].Success
			if !runs[i].Success {
				item.Error = fmt.Sprintf("stage %s: %s", runs[i].FailedStage, runs[i].Error)
			}
		} else {
			item.Error = "not processed: request cancelled"
		}
		if item.Success {
			resp.Successful++
		} else {
			resp.Failed++
		}
		resp.Results = append(resp.Results, item)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	if s.kb == nil {
		respondError(w, http.StatusServiceUnavailable, "knowledge base is read-only")
		return
	}

	var req KnowledgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "documents must not be empty")
		return
	}
	if len(req.Metadatas) > len(req.Documents) {
		respondError(w, http.StatusBadRequest, "metadatas must not outnumber documents")
		return
	}

	stats, err := s.kb.AddTexts(r.Context(), req.Documents, req.Metadatas)
	if err != nil {
		s.logger.Error("knowledge add failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "add documents: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		ingest.Stats
	}{
		Message: fmt.Sprintf("added %d documents (%d chunks) to the knowledge base", stats.Documents, stats.Chunks),
		Stats:   stats,
	})
}
