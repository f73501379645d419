package remote

import (
	"context"
	"fmt"
	"sync"
)

// Script is a Runner for tests: canned outputs keyed by node address and
// command, with a log of everything that was executed.
type Script struct {
	mu      sync.Mutex
	replies map[string]reply
	down    map[string]bool
	Calls   []string
}

type reply struct {
	out string
	err error
}

func NewScript() *Script {
	return &Script{
		replies: map[string]reply{},
		down:    map[string]bool{},
	}
}

func key(nodeAddr, command string) string { return nodeAddr + "|" + command }

// On sets the reply for a command on a node.
func (s *Script) On(nodeAddr, command, output string) {
	s.replies[key(nodeAddr, command)] = reply{out: output}
}

// Fail makes a command return output plus an error, the way a remote shell
// reports a failed command.
func (s *Script) Fail(nodeAddr, command, output string, err error) {
	s.replies[key(nodeAddr, command)] = reply{out: output, err: err}
}

// Down makes every command on a node fail with ErrUnreachable.
func (s *Script) Down(nodeAddr string) { s.down[nodeAddr] = true }

func (s *Script) Run(_ context.Context, nodeAddr, command string) (string, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, key(nodeAddr, command))
	s.mu.Unlock()

	if s.down[nodeAddr] {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, nodeAddr)
	}
	if r, ok := s.replies[key(nodeAddr, command)]; ok {
		return r.out, r.err
	}
	return "", fmt.Errorf("unscripted command %q on %s", command, nodeAddr)
}
