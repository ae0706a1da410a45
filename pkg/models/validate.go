package models

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks v against its `validate` struct tags.
func Validate(v any) error {
	if err := validatorInstance().Struct(v); err != nil {
		return fmt.Errorf("invalid %T: %w", v, err)
	}
	return nil
}

// ValidateTurns checks a simulation conversation: at least one turn, each valid.
func ValidateTurns(turns []Turn) error {
	if err := validatorInstance().Var(turns, "required,min=1,dive"); err != nil {
		return fmt.Errorf("invalid turns: %w", err)
	}
	return nil
}

func invariantError(format string, args ...any) error {
	return fmt.Errorf("analysis job invariant: "+format, args...)
}
