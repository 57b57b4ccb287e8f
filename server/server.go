// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package server exposes the job status API over HTTP: job views with
// progress and error summaries, paginated partition listings, partition
// status updates and job reset.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/pipeline"
	"github.com/poiesic/graphmill/storage"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// JobService is the slice of the pipeline engine the API depends on.
type JobService interface {
	Status(ctx context.Context, jobID core.ID) (*pipeline.JobView, error)
	Reset(ctx context.Context, jobID core.ID) error
	RecomputeProgress(ctx context.Context, jobID core.ID) (*core.Job, error)
}

// Server serves the job status API.
type Server struct {
	jobs       JobService
	partitions storage.PartitionRepository
	logger     *slog.Logger
}

// New creates a Server backed by the given job service and partition store.
func New(jobs JobService, partitions storage.PartitionRepository) *Server {
	return &Server{
		jobs:       jobs,
		partitions: partitions,
		logger:     slog.Default().With("component", "server"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/jobs/{id}", s.handleJobStatus)
	r.Get("/jobs/{id}/partitions", s.handleListPartitions)
	r.Post("/jobs/{id}/reset", s.handleReset)
	r.Patch("/partitions/{id}", s.handleUpdatePartition)
	return r
}

// ListenAndServe runs the API until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown failed", "err", err)
		}
	}()

	s.logger.Info("serving job status API", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	view, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newJobResponse(view))
}

func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var status *core.PartitionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := parsePartitionStatus(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		status = &parsed
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(r, "per_page", defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	partitions, err := s.partitions.ListByJob(r.Context(), jobID, status, (page-1)*perPage, perPage)
	if err != nil {
		s.writeError(w, err)
		return
	}

	items := make([]partitionResponse, 0, len(partitions))
	for _, p := range partitions {
		items = append(items, newPartitionResponse(p))
	}
	s.writeJSON(w, http.StatusOK, partitionListResponse{
		JobID:      uint64(jobID),
		Page:       page,
		PerPage:    perPage,
		Partitions: items,
	})
}

func (s *Server) handleUpdatePartition(w http.ResponseWriter, r *http.Request) {
	partitionID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var req updatePartitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	status, err := parsePartitionStatus(req.Status)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	partition, err := s.partitions.UpdateStatus(r.Context(), partitionID, status, req.ErrorMessage)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Manual status changes bypass the engines, so the parent job's
	// progress has to be re-derived here.
	if _, err := s.jobs.RecomputeProgress(r.Context(), partition.JobId); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPartitionResponse(partition))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.jobs.Reset(r.Context(), jobID); err != nil {
		if errors.Is(err, core.ErrResetWhileProcessing) {
			s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (core.ID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id: " + raw})
		return 0, false
	}
	return core.ID(id), true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	s.logger.Error("request failed", "err", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func parsePartitionStatus(raw string) (core.PartitionStatus, error) {
	switch core.PartitionStatus(raw) {
	case core.PartitionStatusPending, core.PartitionStatusProcessing,
		core.PartitionStatusDone, core.PartitionStatusError:
		return core.PartitionStatus(raw), nil
	default:
		return "", errors.New("invalid status: " + raw)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
