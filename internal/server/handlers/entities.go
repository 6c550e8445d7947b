package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/config"
	"git.home.luguber.info/inful/laundrycycle/internal/coordinator"
	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/server/responses"
)

// CycleService is the part of the coordinator the API uses.
type CycleService interface {
	Register(ctx context.Context, cfg cycle.Config) (string, error)
	Resolve(ref string) (string, error)
	Snapshot(id string) (coordinator.Snapshot, error)
	Snapshots() []coordinator.Snapshot
	RequestTransition(ctx context.Context, id string, stage cycle.Stage) (coordinator.Snapshot, error)
	CancelActiveTimer(ctx context.Context, id string) (coordinator.Snapshot, error)
	Escalate(ctx context.Context, id string) (coordinator.Snapshot, error)
	History(ctx context.Context, id string) ([]cycle.LogEntry, error)
	RunMaintenanceTick(ctx context.Context) (coordinator.TickReport, error)
}

// EntityHandlers serves the /api/entities routes and the manual tick.
type EntityHandlers struct {
	service      CycleService
	defaults     config.CycleDefaults
	errorAdapter *foundationerrors.HTTPErrorAdapter
}

// NewEntityHandlers creates entity handlers. defaults fill in durations a
// registration request leaves out.
func NewEntityHandlers(service CycleService, defaults config.CycleDefaults, logger *slog.Logger) *EntityHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityHandlers{
		service:      service,
		defaults:     defaults,
		errorAdapter: foundationerrors.NewHTTPErrorAdapter(logger),
	}
}

// HandleList handles GET /api/entities.
func (h *EntityHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	snaps := h.service.Snapshots()
	h.respond(w, r, http.StatusOK, &responses.EntityListResponse{
		Entities:  snaps,
		Count:     len(snaps),
		Timestamp: time.Now().UTC(),
	})
}

// HandleRegister handles POST /api/entities.
func (h *EntityHandlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req responses.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	washInterval, err := secondsField("wash_interval_seconds", req.WashIntervalSeconds)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	washDuration, err := secondsField("wash_duration_seconds", req.WashDurationSeconds)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	dryDuration, err := secondsField("dry_duration_seconds", req.DryDurationSeconds)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	cfg := config.CategoryConfig{
		Name:         req.Name,
		WashInterval: washInterval,
		WashDuration: washDuration,
		DryDuration:  dryDuration,
	}.CycleConfig(h.defaults)

	id, err := h.service.Register(r.Context(), cfg)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	snap, err := h.service.Snapshot(id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/entities/"+id)
	h.respond(w, r, http.StatusCreated, &responses.RegisterResponse{ID: id, Entity: snap})
}

// HandleGet handles GET /api/entities/{id}.
func (h *EntityHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, snap)
}

// HandleHistory handles GET /api/entities/{id}/history.
func (h *EntityHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if entries == nil {
		entries = []cycle.LogEntry{}
	}
	h.respond(w, r, http.StatusOK, &responses.HistoryResponse{EntityID: id, Entries: entries})
}

// HandleTransition handles POST /api/entities/{id}/transition.
func (h *EntityHandlers) HandleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req responses.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	stage, err := cycle.ParseStage(req.Stage)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.snapshotResult(w, r)(h.service.RequestTransition(r.Context(), id, stage))
}

// HandleCancelTimer handles POST /api/entities/{id}/cancel-timer.
func (h *EntityHandlers) HandleCancelTimer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.snapshotResult(w, r)(h.service.CancelActiveTimer(r.Context(), id))
}

// HandleEscalate handles POST /api/entities/{id}/escalate.
func (h *EntityHandlers) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.snapshotResult(w, r)(h.service.Escalate(r.Context(), id))
}

// HandleTick handles POST /api/maintenance/tick. Per-entity failures are
// reported in the body; the tick itself still answers 200.
func (h *EntityHandlers) HandleTick(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunMaintenanceTick(r.Context())
	resp := &responses.TickResponse{
		Promoted:   nonNil(report.Promoted),
		Recovered:  nonNil(report.Recovered),
		DurationMS: float64(report.Duration.Microseconds()) / 1000,
	}
	if err != nil {
		resp.Errors = []string{err.Error()}
	}
	h.respond(w, r, http.StatusOK, resp)
}

func (h *EntityHandlers) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := h.service.Resolve(r.PathValue("id"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return "", false
	}
	return id, true
}

func (h *EntityHandlers) snapshotResult(w http.ResponseWriter, r *http.Request) func(coordinator.Snapshot, error) {
	return func(snap coordinator.Snapshot, err error) {
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		h.respond(w, r, http.StatusOK, snap)
	}
}

func (h *EntityHandlers) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSONPretty(w, r, status, v); err != nil {
		internalErr := foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to write response").Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// maxDurationSeconds is the largest second count a time.Duration can hold.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// secondsField converts a request duration in seconds. Zero keeps the default;
// negative values and values beyond time.Duration's range are rejected.
func secondsField(name string, v int64) (time.Duration, error) {
	if v < 0 || v > maxDurationSeconds {
		return 0, foundationerrors.ValidationError("duration out of range").
			WithContext("field", name).
			WithContext("max", maxDurationSeconds).
			Build()
	}
	return time.Duration(v) * time.Second, nil
}
