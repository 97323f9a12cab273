// Package contextpack assembles ranked memories into a token-budgeted
// context ready for inclusion in an LLM prompt.
package contextpack

import (
	"errors"
	"fmt"
)

// ErrInvalidBudget reports a token budget that cannot be satisfied.
var ErrInvalidBudget = errors.New("invalid token budget")

// TokenBudget caps, in tokens, how much each context category may
// contribute, plus a hard total cap.
type TokenBudget struct {
	MaxTotal   int `json:"max_total" env:"CONTEXT_MAX_TOKENS"`
	Profile    int `json:"profile" env:"CONTEXT_PROFILE_TOKENS"`
	Semantic   int `json:"semantic" env:"CONTEXT_SEMANTIC_TOKENS"`
	Episodic   int `json:"episodic" env:"CONTEXT_EPISODIC_TOKENS"`
	Procedural int `json:"procedural" env:"CONTEXT_PROCEDURAL_TOKENS"`
	Entity     int `json:"entity" env:"CONTEXT_ENTITY_TOKENS"`
	History    int `json:"history" env:"CONTEXT_HISTORY_TOKENS"`
}

// DefaultBudget returns the standard context token allocation.
func DefaultBudget() TokenBudget {
	return TokenBudget{
		MaxTotal:   5000,
		Profile:    600,
		Semantic:   1500,
		Episodic:   1500,
		Procedural: 400,
		Entity:     300,
		History:    300,
	}
}

// Validate checks that every cap is positive and the per-category caps
// fit within the total.
func (b TokenBudget) Validate() error {
	for name, v := range map[string]int{
		"max_total": b.MaxTotal, "profile": b.Profile, "semantic": b.Semantic,
		"episodic": b.Episodic, "procedural": b.Procedural,
		"entity": b.Entity, "history": b.History,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidBudget, name)
		}
	}
	sum := b.Profile + b.Semantic + b.Episodic + b.Procedural + b.Entity + b.History
	if sum > b.MaxTotal {
		return fmt.Errorf("%w: category budgets total %d, exceeding max_total %d", ErrInvalidBudget, sum, b.MaxTotal)
	}
	return nil
}
