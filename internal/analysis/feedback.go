package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kiranshivaraju/convointel/internal/cache"
	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// FeedbackGenerator produces coaching feedback for a practice call.
type FeedbackGenerator interface {
	SimulationFeedback(ctx context.Context, sim *models.CallSimulation) (*models.Feedback, error)
}

// FeedbackService manages call simulations and their one-shot feedback.
type FeedbackService struct {
	store     store.SimulationStore
	generator FeedbackGenerator
	cache     cache.Cache
	lockTTL   time.Duration
	metrics   *pipelineMetrics
}

// NewFeedbackService creates a FeedbackService. ca may be nil, which
// disables the per-simulation generation lock.
func NewFeedbackService(st store.SimulationStore, gen FeedbackGenerator, ca cache.Cache, lockTTL time.Duration) *FeedbackService {
	if lockTTL <= 0 {
		lockTTL = 3 * time.Minute
	}
	return &FeedbackService{
		store:     st,
		generator: gen,
		cache:     ca,
		lockTTL:   lockTTL,
		metrics:   newPipelineMetrics(),
	}
}

func (s *FeedbackService) CreateSimulation(ctx context.Context, ownerID uuid.UUID, scenario string, persona *string, turns []models.Turn) (*models.CallSimulation, error) {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		return nil, &ValidationError{Field: "scenario", Message: "is required"}
	}
	if len(turns) > 0 {
		if err := models.ValidateTurns(turns); err != nil {
			return nil, &ValidationError{Field: "turns", Message: err.Error()}
		}
	}
	if persona != nil && strings.TrimSpace(*persona) == "" {
		persona = nil
	}

	now := time.Now().UTC()
	sim := &models.CallSimulation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Scenario:  scenario,
		Persona:   persona,
		Turns:     turns,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sim.Turns == nil {
		sim.Turns = []models.Turn{}
	}
	if err := s.store.CreateCallSimulation(ctx, sim); err != nil {
		return nil, fmt.Errorf("create simulation: %w", err)
	}
	return sim, nil
}

func (s *FeedbackService) GetSimulation(ctx context.Context, id, ownerID uuid.UUID) (*models.CallSimulation, error) {
	return s.store.GetCallSimulation(ctx, id, ownerID)
}

// AppendTurns adds conversation turns. Simulations with feedback are closed.
func (s *FeedbackService) AppendTurns(ctx context.Context, id, ownerID uuid.UUID, turns []models.Turn) (*models.CallSimulation, error) {
	if err := models.ValidateTurns(turns); err != nil {
		return nil, &ValidationError{Field: "turns", Message: err.Error()}
	}
	return s.store.AppendSimulationTurns(ctx, id, ownerID, turns)
}

// GenerateFeedback returns stored feedback when present. Otherwise it calls
// the generator once and stores the result. A generator failure leaves the
// simulation untouched so the call can simply be retried.
func (s *FeedbackService) GenerateFeedback(ctx context.Context, id, ownerID uuid.UUID) (*models.Feedback, error) {
	ctx, span := tracer.Start(ctx, "analysis.GenerateFeedback")
	defer span.End()
	span.SetAttributes(attribute.String("simulation_id", id.String()))

	sim, err := s.store.GetCallSimulation(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !sim.Feedback.IsEmpty() {
		s.metrics.feedbackOutcome(ctx, "cached")
		return sim.Feedback, nil
	}
	if len(sim.Turns) == 0 {
		return nil, ErrEmptyConversation
	}

	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	fb, err := s.generator.SimulationFeedback(ctx, sim)
	if err != nil {
		s.metrics.feedbackOutcome(ctx, "error")
		span.RecordError(err)
		return nil, err
	}

	saved, err := s.store.SaveSimulationFeedback(ctx, id, ownerID, fb)
	if errors.Is(err, store.ErrConflict) {
		current, gerr := s.store.GetCallSimulation(ctx, id, ownerID)
		if gerr != nil {
			return nil, fmt.Errorf("reload simulation: %w", gerr)
		}
		if !current.Feedback.IsEmpty() {
			return current.Feedback, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	s.metrics.feedbackOutcome(ctx, "generated")
	slog.Info("simulation feedback stored", "simulation_id", id)
	return saved.Feedback, nil
}

// lock takes the per-simulation generation lock. It fails open when the
// cache is unavailable.
func (s *FeedbackService) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	noop := func() {}
	if s.cache == nil {
		return noop, nil
	}
	key := cache.FeedbackLockKey(id)
	acquired, err := s.cache.SetIfAbsent(ctx, key, s.lockTTL)
	if err != nil {
		slog.Warn("feedback lock unavailable", "simulation_id", id, "error", err)
		return noop, nil
	}
	if !acquired {
		return nil, ErrFeedbackInProgress
	}
	return func() {
		if err := s.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
			slog.Warn("feedback lock release failed", "simulation_id", id, "error", err)
		}
	}, nil
}
