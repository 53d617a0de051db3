package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/abtest"
	"github.com/ignite/adpilot/internal/domain"
	"github.com/ignite/adpilot/internal/pkg/httputil"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/queue"
	"github.com/ignite/adpilot/internal/scheduler"
)

// statusFor maps domain error classes to HTTP statuses.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ── health ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.queue.HealthCheck(r.Context())

	dbState := "not_configured"
	if s.db != nil {
		dbState = "ok"
		if err := s.db.PingContext(r.Context()); err != nil {
			dbState = "unreachable"
		}
	}

	status := http.StatusOK
	if health.State == queue.Unhealthy || dbState == "unreachable" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"queue":    health,
		"database": dbState,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// ── queue ────────────────────────────────────────────────────────────────────

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.OK(w, stats)
}

type enqueueRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority,omitempty"`
	DelaySeconds int             `json:"delay_seconds,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	id, err := s.queue.Enqueue(r.Context(), queue.JobType(req.Type), req.Payload, queue.EnqueueOptions{
		Priority:    queue.Priority(req.Priority),
		Delay:       time.Duration(req.DelaySeconds) * time.Second,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"job_id": id.String()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid job ID")
		return
	}
	job, err := s.queue.GetJob(r.Context(), id)
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.OK(w, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid job ID")
		return
	}
	cancelled, err := s.queue.CancelJob(r.Context(), queue.JobType(chi.URLParam(r, "type")), id)
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.OK(w, map[string]bool{"cancelled": cancelled})
}

// ── scheduler ────────────────────────────────────────────────────────────────

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, s.sched.GetScheduledJobs())
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	var def scheduler.Definition
	if !httputil.Decode(w, r, &def) {
		return
	}
	if err := s.sched.AddScheduledJob(def); err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.Created(w, map[string]string{"name": def.Name})
}

func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	removed := s.sched.RemoveScheduledJob(chi.URLParam(r, "name"))
	httputil.OK(w, map[string]bool{"removed": removed})
}

func (s *Server) handleStartSchedule(w http.ResponseWriter, r *http.Request) {
	started := s.sched.StartJob(chi.URLParam(r, "name"))
	httputil.OK(w, map[string]bool{"started": started})
}

func (s *Server) handleStopSchedule(w http.ResponseWriter, r *http.Request) {
	stopped := s.sched.StopJob(chi.URLParam(r, "name"))
	httputil.OK(w, map[string]bool{"stopped": stopped})
}

// ── A/B tests ────────────────────────────────────────────────────────────────

type createTestRequest struct {
	CampaignID    uuid.UUID            `json:"campaign_id"`
	Type          string               `json:"type"`
	SuccessMetric string               `json:"success_metric"`
	DurationDays  int                  `json:"duration_days"`
	Variants      []createTestVariant  `json:"variants"`
}

type createTestVariant struct {
	Name              string            `json:"name"`
	Config            map[string]string `json:"config"`
	TrafficPercentage float64           `json:"traffic_percentage"`
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	setup := abtest.Setup{
		CampaignID:    req.CampaignID,
		Type:          abtest.TestType(req.Type),
		SuccessMetric: abtest.SuccessMetric(req.SuccessMetric),
		DurationDays:  req.DurationDays,
	}
	for _, v := range req.Variants {
		setup.Variants = append(setup.Variants, abtest.VariantSetup{
			Name:              v.Name,
			Config:            platform.VariantConfig(v.Config),
			TrafficPercentage: v.TrafficPercentage,
		})
	}

	test, err := s.abtests.CreateTest(r.Context(), setup)
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.Created(w, test)
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.abtests.ActiveTests(r.Context())
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.OK(w, tests)
}

func (s *Server) handleAnalyzeTest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid test ID")
		return
	}
	analysis, err := s.abtests.AnalyzeTest(r.Context(), id)
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.OK(w, analysis)
}

type concludeRequest struct {
	Winner string `json:"winner,omitempty"`
}

func (s *Server) handleConcludeTest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid test ID")
		return
	}

	var req concludeRequest
	if r.Body != nil {
		// An empty body means "conclude with the analyzed winner".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	out, err := s.abtests.ConcludeTest(r.Context(), id, req.Winner)
	if err != nil {
		httputil.Error(w, statusFor(err), err.Error())
		return
	}
	httputil.OK(w, out)
}
