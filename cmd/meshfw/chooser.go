package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"meshfw/internal/firewall/ebt"
	"meshfw/internal/locate"
)

// consoleChooser is the interactive locate.Chooser: numbered list plus a
// cancel entry, re-prompting on invalid input. It blocks with no timeout;
// cancel/EOF/interrupt all map to ErrCanceled.
func consoleChooser(options []string) (int, error) {
	fmt.Println("multiple matches:")
	for i, o := range options {
		fmt.Printf("  %d) %s\n", i+1, o)
	}
	fmt.Println("  0) cancel")

	rl, err := readline.New("select> ")
	if err != nil {
		return 0, err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return 0, locate.ErrCanceled
		}
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr != nil || n < 0 || n > len(options) {
			fmt.Printf("invalid choice (1-%d, 0 to cancel)\n", len(options))
			continue
		}
		if n == 0 {
			return 0, locate.ErrCanceled
		}
		return n - 1, nil
	}
}

// askMode runs the block menu. Returns ok=false when the operator exits.
func askMode() (ebt.Mode, bool) {
	idx, err := consoleChooser([]string{
		"block-silent (drop, client times out)",
		"block-reject (mark, client gets a fast reject)",
		"unblock",
	})
	if err != nil {
		return ebt.ModeUnblock, false
	}
	switch idx {
	case 0:
		return ebt.ModeSilent, true
	case 1:
		return ebt.ModeReject, true
	case 2:
		return ebt.ModeUnblock, true
	}
	return ebt.ModeUnblock, false
}
