package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means no provider is configured or usable at all.
	ErrUnavailable = errors.New("ai not available")
	// ErrCircuitOpen is returned without any network call while the shared
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrGenerateTimeout marks a generation call that ran out of deadline.
	ErrGenerateTimeout = errors.New("generation timeout")
)

// GenerationError is a reply the provider produced but the caller could not
// use: malformed structure or a policy rejection. It carries the raw text for
// diagnostics and is never retried.
type GenerationError struct {
	Reason string
	Raw    string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation error: %s", e.Reason)
}

func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
