// Package runstate persists the single RunState record between collection runs.
package runstate

import (
	"encoding/json"
	"fmt"

	"RecipeCollector/internal/domain"
)

func decode(raw []byte) (*domain.RunState, error) {
	var state domain.RunState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRunStateCorrupt, err)
	}
	return &state, nil
}

func encode(state domain.RunState) ([]byte, error) {
	if state.FailedLinks == nil {
		state.FailedLinks = []string{}
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode run state: %w", err)
	}
	return raw, nil
}
