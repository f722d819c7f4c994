package compat

import (
	"fmt"
	"strings"
)

// Mode represents the compatibility switch state.
type Mode string

const (
	// ModeAuto enables the dispatcher unless an operator turns it off.
	ModeAuto Mode = "auto"
	// ModeEnabled forces the compatibility dispatcher on.
	ModeEnabled Mode = "enabled"
	// ModeDisabled turns the compatibility dispatcher off.
	ModeDisabled Mode = "disabled"
)

// ShouldEnable resolves whether the dispatcher should be active for the provided mode.
func ShouldEnable(mode Mode) bool {
	return mode != ModeDisabled
}

// ParseMode validates CLI/env-provided values.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(ModeAuto):
		return ModeAuto, nil
	case string(ModeEnabled):
		return ModeEnabled, nil
	case string(ModeDisabled):
		return ModeDisabled, nil
	default:
		return ModeAuto, fmt.Errorf("unknown compatibility mode %q (expected enabled, disabled, or auto)", value)
	}
}
