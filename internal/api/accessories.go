package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
)

// DoorView is the door as served by GET /api/v1/door.
type DoorView struct {
	Name                string           `json:"name"`
	Current             garage.DoorState `json:"current"`
	Target              garage.DoorState `json:"target"`
	ObstructionDetected bool             `json:"obstruction_detected"`
	Stale               bool             `json:"stale"`
	StaleReason         string           `json:"stale_reason,omitempty"`
	ReportedAt          time.Time        `json:"reported_at"`
}

// LightView is the light as served by GET /api/v1/light.
type LightView struct {
	Name        string    `json:"name"`
	On          bool      `json:"on"`
	Stale       bool      `json:"stale"`
	StaleReason string    `json:"stale_reason,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

// setDoorRequest is the PUT /api/v1/door body.
type setDoorRequest struct {
	Target string `json:"target"`
}

// setLightRequest is the PUT /api/v1/light body.
type setLightRequest struct {
	On *bool `json:"on"`
}

func (s *Server) doorView() DoorView {
	snap := s.ctrl.DoorSnapshot()
	view := DoorView{
		Name:                s.ctrl.Name(),
		Current:             snap.Current,
		Target:              snap.Target,
		ObstructionDetected: snap.ObstructionDetected,
		ReportedAt:          snap.CurrentSetAt.UTC(),
	}
	if _, err := s.ctrl.DoorCurrentState(); garage.IsStale(err) {
		view.Stale = true
		view.StaleReason = err.Error()
	}
	return view
}

func (s *Server) lightView() LightView {
	snap := s.ctrl.LightSnapshot()
	view := LightView{
		Name:       s.ctrl.LightName(),
		On:         snap.On,
		ReportedAt: snap.SetAt.UTC(),
	}
	if _, err := s.ctrl.LightCurrentState(); garage.IsStale(err) {
		view.Stale = true
		view.StaleReason = err.Error()
	}
	return view
}

// handleGetDoor returns the door state. A stale door still answers 200
// with stale set, so dashboards can show the last known value.
func (s *Server) handleGetDoor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.doorView())
}

// handleSetDoor operates the door and returns the resulting state.
func (s *Server) handleSetDoor(w http.ResponseWriter, r *http.Request) {
	var req setDoorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	target, err := garage.ParseDoorState(req.Target)
	if err != nil || !target.IsTarget() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, `target must be "open" or "closed"`)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	s.logger.Info("api door command",
		"target", target.String(),
		"request_id", r.Context().Value(ctxKeyRequestID))

	if err := s.ctrl.OperateDoor(ctx, target); err != nil {
		s.logger.Warn("api door command failed", "target", target.String(), "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.doorView())
}

// handleGetLight returns the light state, or 404 when no light is configured.
func (s *Server) handleGetLight(w http.ResponseWriter, _ *http.Request) {
	if !s.ctrl.HasLight() {
		writeDeviceError(w, garage.ErrNoLight)
		return
	}
	writeJSON(w, http.StatusOK, s.lightView())
}

// handleSetLight switches the light and returns the resulting state.
func (s *Server) handleSetLight(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.HasLight() {
		writeDeviceError(w, garage.ErrNoLight)
		return
	}

	var req setLightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, `"on" is required`)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.ctrl.OperateLight(ctx, *req.On); err != nil {
		s.logger.Warn("api light command failed", "on", *req.On, "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.lightView())
}

// handleRefresh polls the device once and returns the door and light.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	s.ctrl.Refresh(ctx)

	resp := map[string]any{"door": s.doorView()}
	if s.ctrl.HasLight() {
		resp["light"] = s.lightView()
	}
	writeJSON(w, http.StatusOK, resp)
}
