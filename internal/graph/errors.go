package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDefinition wraps every validation failure.
	ErrInvalidDefinition = errors.New("invalid graph definition")

	// ErrCycleDetected is returned when static chain edges form a cycle.
	ErrCycleDetected = errors.New("chain cycle detected")

	// ErrUnknownTarget is returned when a chain edge names an undeclared agent.
	ErrUnknownTarget = errors.New("unknown chain target")
)

// ValidationError names the offending field of a definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap returns the base error for errors.Is compatibility.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}

// CycleError provides the agents forming a chain cycle.
type CycleError struct {
	Path []string
}

// Error returns a human-readable description of the cycle.
func (e *CycleError) Error() string {
	return fmt.Sprintf("chain cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap returns the base error for errors.Is compatibility.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
