package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TurnRoleRep      = "rep"
	TurnRoleProspect = "prospect"
)

// CallSimulation is a practice call between a rep and an AI prospect. The
// conversation is stored locally, so feedback needs no transcription stage.
type CallSimulation struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	OwnerID   uuid.UUID `db:"owner_id"   json:"owner_id"`
	Scenario  string    `db:"scenario"   json:"scenario"`
	Persona   *string   `db:"persona"    json:"persona,omitempty"`
	Turns     []Turn    `db:"turns"      json:"turns"`
	Feedback  *Feedback `db:"feedback"   json:"feedback"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Turn is one message in a simulated call.
type Turn struct {
	Role    string `json:"role"    validate:"required,oneof=rep prospect"`
	Content string `json:"content" validate:"required"`
}

// Feedback is the coaching review generated for a simulation.
type Feedback struct {
	Summary      string   `json:"summary"                validate:"required"`
	Strengths    []string `json:"strengths,omitempty"    validate:"omitempty,dive,required"`
	Improvements []string `json:"improvements,omitempty" validate:"omitempty,dive,required"`
	Score        *int     `json:"score,omitempty"        validate:"omitempty,gte=0,lte=100"`
}

// IsEmpty reports whether f carries no usable feedback.
func (f *Feedback) IsEmpty() bool {
	return f == nil || strings.TrimSpace(f.Summary) == ""
}
