package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/convointel/internal/api/response"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

const maxJSONBody = 1 << 20

// SimulationService manages practice calls and their feedback.
type SimulationService interface {
	CreateSimulation(ctx context.Context, ownerID uuid.UUID, scenario string, persona *string, turns []models.Turn) (*models.CallSimulation, error)
	GetSimulation(ctx context.Context, id, ownerID uuid.UUID) (*models.CallSimulation, error)
	AppendTurns(ctx context.Context, id, ownerID uuid.UUID, turns []models.Turn) (*models.CallSimulation, error)
	GenerateFeedback(ctx context.Context, id, ownerID uuid.UUID) (*models.Feedback, error)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

// NewCreateSimulationHandler returns an http.HandlerFunc for POST /api/v1/simulations.
func NewCreateSimulationHandler(svc SimulationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}

		var req struct {
			Scenario string        `json:"scenario"`
			Persona  *string       `json:"persona"`
			Turns    []models.Turn `json:"turns"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		sim, err := svc.CreateSimulation(r.Context(), ownerID, req.Scenario, req.Persona, req.Turns)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, "/api/v1/simulations/"+sim.ID.String(), sim)
	}
}

// NewGetSimulationHandler returns an http.HandlerFunc for
// GET /api/v1/simulations/{simulationID}.
func NewGetSimulationHandler(svc SimulationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "simulationID", "INVALID_SIMULATION_ID")
		if !ok {
			return
		}

		sim, err := svc.GetSimulation(r.Context(), id, ownerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, sim)
	}
}

// NewAppendTurnsHandler returns an http.HandlerFunc for
// POST /api/v1/simulations/{simulationID}/turns.
func NewAppendTurnsHandler(svc SimulationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "simulationID", "INVALID_SIMULATION_ID")
		if !ok {
			return
		}

		var req struct {
			Turns []models.Turn `json:"turns"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		sim, err := svc.AppendTurns(r.Context(), id, ownerID, req.Turns)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, sim)
	}
}

// NewGenerateFeedbackHandler returns an http.HandlerFunc for
// POST /api/v1/simulations/{simulationID}/feedback.
func NewGenerateFeedbackHandler(svc SimulationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "simulationID", "INVALID_SIMULATION_ID")
		if !ok {
			return
		}

		fb, err := svc.GenerateFeedback(r.Context(), id, ownerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, fb)
	}
}
