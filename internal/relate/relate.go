// Package relate computes job-control families from process-table snapshots.
package relate

import "github.com/m0rik/panenap/internal/model"

// Related returns the set of pids one job-control hop away from root: root
// itself, plus every snapshot row whose parent, process group, session, or
// controlling-terminal foreground group equals root. The relation is
// deliberately not a transitive tree walk; parent/group/session ids already
// encode the job-control family without traversal, and widening the rule
// would change dispatch scope.
//
// A root absent from the snapshot (already exited) still matches rows that
// reference it, e.g. an orphaned child whose process group id survives.
func Related(root int, snapshot []model.ProcessAttributes) map[int]struct{} {
	related := map[int]struct{}{root: {}}
	for _, p := range snapshot {
		if p.PID == root || p.ParentPID == root || p.ProcessGroupID == root ||
			p.SessionID == root || p.ForegroundPGID == root {
			related[p.PID] = struct{}{}
		}
	}
	return related
}
