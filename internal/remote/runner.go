package remote

import (
	"context"
	"errors"
)

// ErrUnreachable wraps connect/timeout failures so callers can tell a dead
// node apart from a command that ran and failed.
var ErrUnreachable = errors.New("node unreachable")

// Runner executes one command on one node and returns its combined output.
// A nil error with empty output is legitimate (e.g. an empty lease file);
// failures always carry a non-nil error.
type Runner interface {
	Run(ctx context.Context, nodeAddr, command string) (string, error)
}
