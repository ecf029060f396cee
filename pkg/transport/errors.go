package transport

import (
	"errors"
	"fmt"
)

// CommandFailed is returned by ExecChecked when a command completes with a
// non-zero exit code.
type CommandFailed struct {
	Output string
	Code   int
}

func (e *CommandFailed) Error() string {
	return fmt.Sprintf("command failed with exit code %d: %s", e.Code, e.Output)
}

// Sentinel errors for transport and interactive-stream conditions.
var (
	// ErrNotConnected is returned by Exec/ExecOpen when Connect has not
	// completed successfully on this transport.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrStreamConsumed is returned when a wait method is called on an
	// interactive stream whose underlying process has already terminated
	// and been fully drained by a previous wait call.
	ErrStreamConsumed = errors.New("transport: stream already consumed")
	// ErrMissingKey is returned by FromSecrets when a required
	// configuration key is absent from the secrets map.
	ErrMissingKey = errors.New("not found")
)

func missingKeyError(key string) error {
	return fmt.Errorf("%s %w", key, ErrMissingKey)
}
