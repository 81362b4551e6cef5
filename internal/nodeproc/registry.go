package nodeproc

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	apperrors "ros-node-supervisor/internal/common/errors"
	"ros-node-supervisor/internal/common/logger"
)

const captureDoneWaitBound = 2 * time.Second

// RegistryConfig carries the tunables a Registry needs from supervisor
// configuration.
type RegistryConfig struct {
	RosDistro          string
	LaunchTimeout      time.Duration
	MonitorInterval    time.Duration
	GraceTimeout       time.Duration
	EventQueueCapacity int

	// VerboseCapture controls whether Output Capture (C3) starts for a
	// launched node. Disabling it skips the per-stream reader goroutines and
	// their log events entirely; status/lifecycle events are unaffected.
	VerboseCapture bool
}

// Registry is the single owner of every launched node's state. It wires the
// Launcher, OutputCapture, TreeMonitor, and Terminator together behind one
// map guarded by an RWMutex, mirroring the teacher's instance-tracking
// lifecycle manager shape.
type Registry struct {
	launcher   *Launcher
	terminator *Terminator
	monitor    *TreeMonitor
	logger     *logger.Logger

	nc             *nats.Conn
	natsSubj       string
	queueCap       int
	launchTmo      time.Duration
	verboseCapture bool

	nodes map[string]*NodeRecord
	mu    sync.RWMutex
}

// NewRegistry builds a Registry and its TreeMonitor, but does not start the
// monitor loop — call Start for that.
func NewRegistry(cfg RegistryConfig, nc *nats.Conn, natsSubject string, log *logger.Logger) *Registry {
	r := &Registry{
		launcher:       NewLauncher(cfg.RosDistro, log),
		terminator:     NewTerminator(cfg.GraceTimeout, log),
		logger:         log.WithFields(zap.String("component", "registry")),
		nc:             nc,
		natsSubj:       natsSubject,
		queueCap:       cfg.EventQueueCapacity,
		launchTmo:      cfg.LaunchTimeout,
		verboseCapture: cfg.VerboseCapture,
		nodes:          make(map[string]*NodeRecord),
	}
	r.monitor = NewTreeMonitor(r, cfg.MonitorInterval, log)
	return r
}

// Start begins the background tree-monitoring sweep.
func (r *Registry) Start() {
	r.monitor.Start()
}

// Stop halts the monitor sweep. It does not terminate running nodes.
func (r *Registry) Stop() {
	r.monitor.Stop()
}

// Launch starts a new node under name and registers it. A name collision is
// rejected with an AlreadyExists error; the registry never implicitly
// replaces a running node. Output Capture (C3) starts only when
// verboseCapture is enabled; otherwise captureDone is closed immediately so
// eviction never waits on a capture task that was never started.
func (r *Registry) Launch(req NodeRequest) (*NodeRecord, error) {
	r.mu.Lock()
	if _, exists := r.nodes[req.Name]; exists {
		r.mu.Unlock()
		return nil, apperrors.AlreadyExists("node", req.Name)
	}
	// Reserve the name with a placeholder so a concurrent Launch for the
	// same name fails fast instead of racing the launcher.
	r.nodes[req.Name] = &NodeRecord{Name: req.Name, State: StateStarting}
	r.mu.Unlock()

	record, err := r.launcher.Launch(req, r.launchTmo, r.queueCap)
	if err != nil {
		r.mu.Lock()
		delete(r.nodes, req.Name)
		r.mu.Unlock()
		return nil, err
	}

	if r.verboseCapture {
		NewOutputCapture(record, r.logger).Start()
	} else {
		close(record.captureDone)
	}

	r.mu.Lock()
	r.nodes[req.Name] = record
	r.mu.Unlock()

	r.publishLifecycleEvent("launched", record.Name)
	return record, nil
}

// Terminate shuts down the named node. A node still in the starting state
// is rejected — the launch-time child-discovery poll has not finished and
// there is nothing safe to signal yet. An absent node is a no-op warning,
// not an error, matching the documented terminate contract. A node already
// terminating is left to the terminator already in flight.
func (r *Registry) Terminate(name string) error {
	r.mu.Lock()
	record, exists := r.nodes[name]
	if !exists {
		r.mu.Unlock()
		r.logger.Warn("terminate requested for unknown node", zap.String("node", name))
		return nil
	}
	switch record.State {
	case StateStarting:
		r.mu.Unlock()
		return apperrors.Conflict(fmt.Sprintf("node %q is still starting", name))
	case StateTerminating, StateTerminated:
		r.mu.Unlock()
		return nil
	}
	record.State = StateTerminating
	r.mu.Unlock()

	err := r.terminator.Terminate(record)

	r.mu.Lock()
	record.State = StateTerminated
	delete(r.nodes, name)
	r.mu.Unlock()

	r.publishLifecycleEvent("terminated", name)
	return err
}

// GetEvents drains and returns every event queued for name since the last
// drain. This is destructive: a given event is returned at most once.
func (r *Registry) GetEvents(name string) ([]NodeEvent, error) {
	record, err := r.get(name)
	if err != nil {
		return nil, err
	}
	return record.Events.DrainAll(), nil
}

// Tail returns a non-destructive event subscription for name, independent
// of GetEvents' destructive drain, plus a cancel func to release it.
func (r *Registry) Tail(name string) (<-chan NodeEvent, func(), error) {
	record, err := r.get(name)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := record.Events.Tail()
	return ch, cancel, nil
}

// List returns the name and state of every currently tracked node.
func (r *Registry) List() []NodeStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeStatus, 0, len(r.nodes))
	for _, rec := range r.nodes {
		out = append(out, NodeStatus{Name: rec.Name, State: rec.State})
	}
	return out
}

// get returns the record for name or a NotFound AppError.
func (r *Registry) get(name string) (*NodeRecord, error) {
	r.mu.RLock()
	record, exists := r.nodes[name]
	r.mu.RUnlock()
	if !exists {
		return nil, apperrors.NotFound("node", name)
	}
	return record, nil
}

// snapshot returns the current records for the monitor to sweep without
// holding the registry lock during the (potentially slow) process lookups.
func (r *Registry) snapshot() []*NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*NodeRecord, 0, len(r.nodes))
	for _, rec := range r.nodes {
		out = append(out, rec)
	}
	return out
}

// evictUnexpectedDeath removes a node the monitor found dead without a
// Terminate call. It waits a bounded amount of time for the output-capture
// goroutines to observe EOF and flush their final lines first, so a crash's
// last log lines aren't lost to eviction racing the capture task. The
// caller must have already observed record.State == StateRunning; this
// claims the record (StateTerminating) before the monitor can race a second
// eviction attempt onto the same record.
func (r *Registry) evictUnexpectedDeath(record *NodeRecord) {
	r.mu.Lock()
	if record.State != StateRunning {
		r.mu.Unlock()
		return
	}
	record.State = StateTerminating
	r.mu.Unlock()

	select {
	case <-record.captureDone:
	case <-time.After(captureDoneWaitBound):
		r.logger.Warn("capture did not finish within bound, evicting anyway", zap.String("node", record.Name))
	}

	r.mu.Lock()
	record.State = StateTerminated
	delete(r.nodes, record.Name)
	r.mu.Unlock()

	r.publishLifecycleEvent("crashed", record.Name)
}

// publishLifecycleEvent best-effort publishes a lifecycle notification. A
// nil or disconnected NATS connection is not an error for the caller.
func (r *Registry) publishLifecycleEvent(kind, name string) {
	if r.nc == nil {
		return
	}
	payload := fmt.Sprintf(`{"event":%q,"node":%q}`, kind, name)
	if err := r.nc.Publish(r.natsSubj, []byte(payload)); err != nil {
		r.logger.Warn("failed to publish lifecycle event", zap.String("node", name), zap.String("event", kind), zap.Error(err))
	}
}

// NodeStatus is the registry's external view of a tracked node.
type NodeStatus struct {
	Name  string
	State State
}
