package browser

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/process"
)

type trackedProcess struct {
	pid     int32
	created int64
}

// processTree remembers a browser process and its descendants so that the
// ones surviving a close can be killed without touching a recycled pid.
type processTree struct {
	root    int32
	members []trackedProcess
}

func snapshotTree(ctx context.Context, rootPid int) processTree {
	tree := processTree{root: int32(rootPid)}

	root, err := process.NewProcessWithContext(ctx, int32(rootPid))
	if err != nil {
		return tree
	}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		created, err := current.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}
		tree.members = append(tree.members, trackedProcess{pid: current.Pid, created: created})

		children, err := current.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		queue = append(queue, children...)
	}
	return tree
}

// reap kills every remembered process that is still running and returns how
// many it had to kill.
func (t processTree) reap(ctx context.Context) (int, error) {
	killed := 0
	var errs []error
	for _, member := range t.members {
		proc, err := process.NewProcessWithContext(ctx, member.pid)
		if errors.Is(err, process.ErrorProcessNotRunning) {
			continue
		}
		if err != nil {
			continue
		}
		created, err := proc.CreateTimeWithContext(ctx)
		if err != nil || created != member.created {
			continue
		}
		running, err := proc.IsRunningWithContext(ctx)
		if err != nil || !running {
			continue
		}
		err = proc.KillWithContext(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		killed++
	}
	return killed, errors.Join(errs...)
}
