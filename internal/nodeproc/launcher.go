package nodeproc

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	apperrors "ros-node-supervisor/internal/common/errors"
	"ros-node-supervisor/internal/common/logger"
)

const childDiscoveryPollInterval = 500 * time.Millisecond

// Launcher builds a node's command line, spawns it in its own process
// group, and optionally waits for an initial child-process snapshot.
type Launcher struct {
	env    *EnvironmentProvider
	logger *logger.Logger
}

// NewLauncher creates a Launcher sourcing environment for the given ROS
// distro.
func NewLauncher(rosDistro string, log *logger.Logger) *Launcher {
	return &Launcher{
		env:    NewEnvironmentProvider(rosDistro),
		logger: log.WithFields(zap.String("component", "launcher")),
	}
}

// Launch validates the request, builds argv, spawns the process in a new
// process group, and (for launch files) polls for initial children up to
// timeout. It returns a running NodeRecord or a LaunchFailed/InvalidRequest
// AppError. No record is returned on failure.
func (l *Launcher) Launch(req NodeRequest, timeout time.Duration, queueCapacity int) (*NodeRecord, error) {
	isLaunchTree := req.LaunchFile != ""
	hasExecutable := req.Executable != ""
	hasLaunchFile := req.LaunchFile != ""
	if hasExecutable == hasLaunchFile {
		return nil, apperrors.BadRequest("exactly one of executable or launch_file must be set")
	}

	argv := buildArgv(req)

	env, err := l.env.Resolve()
	if err != nil {
		return nil, apperrors.InternalError("failed to resolve node environment", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.InternalError("failed to create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.InternalError("failed to create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apperrors.InternalError(fmt.Sprintf("failed to launch node %q", req.Name), err)
	}

	events := NewEventQueue(queueCapacity)
	events.Push(EventStatus, "Node process launched.", "")

	record := &NodeRecord{
		Name:           req.Name,
		Cmd:            cmd,
		ProcessGroupID: cmd.Process.Pid,
		Children:       nil,
		IsLaunchTree:   isLaunchTree,
		State:          StateRunning,
		Events:         events,
		StartTime:      time.Now(),
		captureDone:    make(chan struct{}),
		stdout:         stdout,
		stderr:         stderr,
		exited:         make(chan struct{}),
	}
	go reap(record)

	if isLaunchTree {
		l.discoverInitialChildren(record, timeout)
	}

	return record, nil
}

// reap waits for the spawned process to exit and reaps it, closing
// record.exited. This is the only place cmd.Wait() is called for a
// record, so the top-level process's liveness is always learned from this
// channel rather than by polling the OS process table (which would still
// answer for an un-reaped zombie).
func reap(record *NodeRecord) {
	record.exitErr = record.Cmd.Wait()
	close(record.exited)
}

// buildArgv renders the ros2 invocation per the node request.
func buildArgv(req NodeRequest) []string {
	var argv []string
	if req.Executable != "" {
		argv = []string{"ros2", "run", req.Package, req.Executable}
	} else {
		argv = []string{"ros2", "launch", req.Package, req.LaunchFile}
	}

	if len(req.Parameters) > 0 {
		keys := make([]string, 0, len(req.Parameters))
		for k := range req.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		argv = append(argv, "--ros-args")
		for _, k := range keys {
			argv = append(argv, "-p", fmt.Sprintf("%s:=%s", k, req.Parameters[k]))
		}
	}
	return argv
}

// discoverInitialChildren polls for the spawned process's descendants every
// 500ms up to timeout, recording the first non-empty snapshot. A timeout
// with no children is a warning, not an error; late children are picked up
// by the Tree Monitor instead.
func (l *Launcher) discoverInitialChildren(record *NodeRecord, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		children, err := childrenOf(record.ProcessGroupID)
		if err == nil && len(children) > 0 {
			record.Children = children
			record.Events.Push(EventStatus, fmt.Sprintf("Children: %s", formatPIDs(children)), "")
			return
		}
		if time.Now().After(deadline) {
			record.Events.Push(EventWarning, "no children discovered within launch timeout", "")
			return
		}
		time.Sleep(childDiscoveryPollInterval)
	}
}

// childrenOf returns the full recursive descendant set of pid: children,
// grandchildren, and so on. gopsutil's Process.Children() only returns one
// generation (pgrep -P semantics), so each newly discovered child is itself
// walked in turn, breadth-first, until no new descendants turn up.
func childrenOf(pid int) ([]*ChildProcess, error) {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}

	seen := make(map[int32]bool)
	var result []*ChildProcess
	queue := []*process.Process{root}

	for len(queue) > 0 {
		proc := queue[0]
		queue = queue[1:]

		kids, err := proc.Children()
		if err != nil {
			// No children (or the process exited mid-walk); nothing more
			// to discover under this branch.
			continue
		}
		for _, k := range kids {
			if seen[k.Pid] {
				continue
			}
			seen[k.Pid] = true
			result = append(result, &ChildProcess{PID: int(k.Pid)})
			queue = append(queue, k)
		}
	}

	return result, nil
}

func formatPIDs(children []*ChildProcess) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = fmt.Sprintf("%d", c.PID)
	}
	return strings.Join(parts, ", ")
}
