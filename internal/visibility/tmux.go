package visibility

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/m0rik/panenap/internal/runner"
	"github.com/m0rik/panenap/internal/tmuxfmt"
)

// Tmux reads pane visibility from tmux. A pane counts as visible when its
// session has at least one attached client, its window is the session's
// active window, and it is the active pane of that window. tmux exposes no
// finer notion without client geometry, so this is the strictest flag
// combination available.
type Tmux struct {
	executor *runner.Executor
}

func NewTmux(executor *runner.Executor) *Tmux {
	return &Tmux{executor: executor}
}

func (t *Tmux) Available() bool { return true }

func (t *Tmux) Snapshot(ctx context.Context) (map[string]bool, error) {
	res, err := t.executor.Run(ctx, "tmux", "list-panes", "-a", "-F",
		tmuxfmt.Join("#{pane_id}", "#{session_attached}", "#{window_active}", "#{pane_active}"))
	if err != nil {
		return nil, fmt.Errorf("tmux visibility: %w", err)
	}
	return ParseVisibility(res.Output)
}

// ParseVisibility parses list-panes output with the fields pane_id,
// session_attached, window_active, pane_active.
func ParseVisibility(output string) (map[string]bool, error) {
	vis := make(map[string]bool)
	s := bufio.NewScanner(strings.NewReader(output))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := tmuxfmt.SplitLine(line, 4)
		if len(parts) != 4 || !strings.HasPrefix(parts[0], "%") {
			return nil, fmt.Errorf("invalid tmux visibility line: %q", line)
		}
		// session_attached is a client count, the active flags are 0/1.
		vis[parts[0]] = parts[1] != "0" && parts[1] != "" &&
			parts[2] == "1" && parts[3] == "1"
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan tmux output: %w", err)
	}
	return vis, nil
}
