// Package proctable reads point-in-time process-table snapshots.
package proctable

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m0rik/panenap/internal/model"
	"github.com/m0rik/panenap/internal/runner"
)

// Table enumerates the live process table at one instant. No ordering is
// guaranteed and no row survives past the cycle that requested it.
type Table interface {
	Snapshot(ctx context.Context) ([]model.ProcessAttributes, error)
}

// PS reads the process table by shelling out to ps(1).
type PS struct {
	executor *runner.Executor
}

func NewPS(executor *runner.Executor) *PS {
	return &PS{executor: executor}
}

var psArgs = []string{"-A", "-o", "pid=,ppid=,pgid=,sess=,tpgid=,comm="}

func (t *PS) Snapshot(ctx context.Context) ([]model.ProcessAttributes, error) {
	res, err := t.executor.Run(ctx, "ps", psArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSnapshotUnavailable, err)
	}
	return ParsePS(res.Output), nil
}

// ParsePS parses `ps -A -o pid=,ppid=,pgid=,sess=,tpgid=,comm=` output.
// Rows for processes that exited mid-enumeration show up truncated or
// malformed; those are skipped, never fatal.
func ParsePS(output string) []model.ProcessAttributes {
	s := bufio.NewScanner(strings.NewReader(output))
	rows := make([]model.ProcessAttributes, 0, 128)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 5 {
			continue
		}
		var nums [5]int
		ok := true
		for i := range nums {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				ok = false
				break
			}
			nums[i] = n
		}
		if !ok {
			continue
		}
		comm := ""
		if len(fields) > 5 {
			comm = strings.Join(fields[5:], " ")
		}
		rows = append(rows, model.ProcessAttributes{
			PID:            nums[0],
			ParentPID:      nums[1],
			ProcessGroupID: nums[2],
			SessionID:      nums[3],
			ForegroundPGID: nums[4],
			Command:        comm,
		})
	}
	return rows
}
