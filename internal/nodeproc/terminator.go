package nodeproc

import (
	"syscall"
	"time"

	"go.uber.org/zap"

	"ros-node-supervisor/internal/common/logger"
)

// Terminator implements the escalating shutdown sequence: SIGINT to the
// process group, a grace period, then SIGKILL to whatever remains.
type Terminator struct {
	grace  time.Duration
	logger *logger.Logger
}

// NewTerminator creates a Terminator using grace as the SIGINT-to-SIGKILL
// wait.
func NewTerminator(grace time.Duration, log *logger.Logger) *Terminator {
	return &Terminator{grace: grace, logger: log.WithFields(zap.String("component", "terminator"))}
}

// Terminate sends SIGINT to every known child, then to record's process
// group, waits up to t.grace for the top-level process to exit, and
// escalates to SIGKILL against the group on timeout. In every case it ends
// by sending SIGKILL to any known child still running. It returns once the
// top-level process has been reaped.
func (t *Terminator) Terminate(record *NodeRecord) error {
	for _, c := range record.Children {
		if processAlive(c.PID) {
			if err := signalPID(c.PID, syscall.SIGINT); err != nil {
				t.logger.Warn("SIGINT to child failed", zap.String("node", record.Name), zap.Int("pid", c.PID), zap.Error(err))
			}
		}
	}

	if _, err := processGroupID(record.ProcessGroupID); err != nil {
		// The leader's process group can no longer be looked up, meaning the
		// process is already gone (on Linux, Getpgid only fails once the
		// process has actually been reaped). There is no group left to
		// signal, so treat this as a successful termination and fall
		// straight through to the final child sweep instead of signaling a
		// group that no longer exists.
		<-record.exited
		record.Events.Push(EventStatus, "Terminated gracefully.", "")
		t.sweepChildrenSIGKILL(record)
		return nil
	}

	if err := signalGroup(record.ProcessGroupID, syscall.SIGINT); err != nil && !isExited(record) {
		// A signal error while the leader is already reaped is expected
		// (ESRCH); only surface it when the leader is still believed alive.
		t.logger.Warn("SIGINT to process group failed", zap.String("node", record.Name), zap.Error(err))
	}

	if t.waitForExit(record, t.grace) {
		record.Events.Push(EventStatus, "Terminated gracefully.", "")
		t.sweepChildrenSIGKILL(record)
		return nil
	}

	return t.kill(record)
}

// kill sends SIGKILL to the process group, waits unboundedly for the
// top-level process to exit, then sweeps children once more for any still
// reported alive (a defunct group leader can leave orphans outside the
// group's signal reach).
func (t *Terminator) kill(record *NodeRecord) error {
	if err := signalGroup(record.ProcessGroupID, syscall.SIGKILL); err != nil && !isExited(record) {
		t.logger.Warn("SIGKILL to process group failed", zap.String("node", record.Name), zap.Error(err))
	}

	<-record.exited // the kernel guarantees eventual reaping once killed
	record.Events.Push(EventStatus, "Terminated forcefully.", "")

	t.sweepChildrenSIGKILL(record)
	return nil
}

// sweepChildrenSIGKILL sends SIGKILL to every still-running known child.
func (t *Terminator) sweepChildrenSIGKILL(record *NodeRecord) {
	for _, c := range record.Children {
		if processAlive(c.PID) {
			if err := signalPID(c.PID, syscall.SIGKILL); err != nil {
				t.logger.Warn("SIGKILL to child failed", zap.String("node", record.Name), zap.Int("pid", c.PID), zap.Error(err))
			}
		}
	}
}

// waitForExit blocks until the top-level process has been reaped or
// timeout elapses, returning whether it exited in time.
func (t *Terminator) waitForExit(record *NodeRecord, timeout time.Duration) bool {
	select {
	case <-record.exited:
		return true
	case <-time.After(timeout):
		return false
	}
}

// isExited reports whether the top-level process has already been reaped.
func isExited(record *NodeRecord) bool {
	select {
	case <-record.exited:
		return true
	default:
		return false
	}
}
