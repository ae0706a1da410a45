package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

const simulationColumns = `id, owner_id, scenario, persona, turns, feedback, created_at, updated_at`

func scanSimulation(row rowScanner) (*models.CallSimulation, error) {
	var (
		sim      models.CallSimulation
		turns    []byte
		feedback []byte
	)
	if err := row.Scan(&sim.ID, &sim.OwnerID, &sim.Scenario, &sim.Persona, &turns, &feedback,
		&sim.CreatedAt, &sim.UpdatedAt); err != nil {
		return nil, err
	}

	sim.Turns = []models.Turn{}
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &sim.Turns); err != nil {
			return nil, fmt.Errorf("simulation %s turns: %w: %v", sim.ID, ErrInvalidPayload, err)
		}
	}
	if err := validateTurns(sim.Turns); err != nil {
		return nil, fmt.Errorf("simulation %s: %w", sim.ID, err)
	}

	var err error
	if sim.Feedback, err = decodePayload[models.Feedback](feedback); err != nil {
		return nil, fmt.Errorf("simulation %s feedback: %w", sim.ID, err)
	}
	return &sim, nil
}

// validateTurns accepts an empty conversation but rejects malformed turns.
func validateTurns(turns []models.Turn) error {
	for i := range turns {
		if err := models.Validate(&turns[i]); err != nil {
			return fmt.Errorf("%w: turn %d: %v", ErrInvalidPayload, i, err)
		}
	}
	return nil
}

func encodeTurns(turns []models.Turn) ([]byte, error) {
	if turns == nil {
		turns = []models.Turn{}
	}
	if err := validateTurns(turns); err != nil {
		return nil, err
	}
	return json.Marshal(turns)
}

func (s *PostgresStore) CreateCallSimulation(ctx context.Context, sim *models.CallSimulation) error {
	turns, err := encodeTurns(sim.Turns)
	if err != nil {
		return err
	}
	var feedback []byte
	if sim.Feedback != nil {
		if feedback, err = encodePayload(sim.Feedback); err != nil {
			return err
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_simulations (id, owner_id, scenario, persona, turns, feedback, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sim.ID, sim.OwnerID, sim.Scenario, sim.Persona, turns, feedback, sim.CreatedAt, sim.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create call simulation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCallSimulation(ctx context.Context, id, ownerID uuid.UUID) (*models.CallSimulation, error) {
	sim, err := scanSimulation(s.pool.QueryRow(ctx,
		`SELECT `+simulationColumns+` FROM call_simulations WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ownershipError(ctx, "call_simulations", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get call simulation: %w", err)
	}
	return sim, nil
}

// AppendSimulationTurns extends the conversation while no feedback exists.
func (s *PostgresStore) AppendSimulationTurns(ctx context.Context, id, ownerID uuid.UUID, turns []models.Turn) (*models.CallSimulation, error) {
	payload, err := encodeTurns(turns)
	if err != nil {
		return nil, err
	}
	sim, err := scanSimulation(s.pool.QueryRow(ctx,
		`UPDATE call_simulations SET turns = turns || $3::jsonb, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND feedback IS NULL
		 RETURNING `+simulationColumns,
		id, ownerID, payload))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetCallSimulation(ctx, id, ownerID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("append simulation turns: %w", err)
	}
	return sim, nil
}

func (s *PostgresStore) SaveSimulationFeedback(ctx context.Context, id, ownerID uuid.UUID, feedback *models.Feedback) (*models.CallSimulation, error) {
	payload, err := encodePayload(feedback)
	if err != nil {
		return nil, err
	}
	sim, err := scanSimulation(s.pool.QueryRow(ctx,
		`UPDATE call_simulations SET feedback = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND feedback IS NULL
		 RETURNING `+simulationColumns,
		id, ownerID, payload))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("save simulation feedback: %w", err)
	}
	return sim, nil
}
