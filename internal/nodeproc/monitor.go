package nodeproc

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"ros-node-supervisor/internal/common/logger"
)

// TreeMonitor is the single long-running sweep that refreshes each node's
// child set and reaps nodes whose whole process tree has died.
type TreeMonitor struct {
	registry *Registry
	interval time.Duration
	logger   *logger.Logger
	stopCh   chan struct{}
	done     chan struct{}
}

// NewTreeMonitor creates a monitor sweeping registry every interval.
func NewTreeMonitor(registry *Registry, interval time.Duration, log *logger.Logger) *TreeMonitor {
	return &TreeMonitor{
		registry: registry,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "monitor")),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in its own goroutine until Stop is called.
func (m *TreeMonitor) Start() {
	go m.loop()
}

// Stop signals the loop to exit and waits for it to do so.
func (m *TreeMonitor) Stop() {
	close(m.stopCh)
	<-m.done
}

func (m *TreeMonitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep snapshots the registry and inspects each record in turn. A panic or
// error sweeping one record is caught and logged; the sweep continues.
func (m *TreeMonitor) sweep() {
	for _, record := range m.registry.snapshot() {
		m.sweepOne(record)
	}
}

func (m *TreeMonitor) sweepOne(record *NodeRecord) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic sweeping node", zap.String("node", record.Name), zap.Any("panic", r))
		}
	}()

	if record.State != StateRunning {
		return
	}

	topAlive := !isExited(record)
	if topAlive {
		m.refreshChildren(record)
	}

	if m.isTreeDead(record, topAlive) {
		record.Events.Push(EventStatus, fmt.Sprintf("Node %s stopped unexpectedly", record.Name), "")
		// Eviction waits on the capture task and must not stall the sweep
		// of other nodes, so it runs off the loop goroutine.
		go m.registry.evictUnexpectedDeath(record)
	}
}

// refreshChildren appends any descendant PID not already tracked, emitting a
// status event for each one discovered.
func (m *TreeMonitor) refreshChildren(record *NodeRecord) {
	children, err := childrenOf(record.ProcessGroupID)
	if err != nil {
		m.logger.Warn("transient child lookup failure", zap.String("node", record.Name), zap.Error(err))
		return
	}

	known := make(map[int]bool, len(record.Children))
	for _, c := range record.Children {
		known[c.PID] = true
	}

	for _, c := range children {
		if known[c.PID] {
			continue
		}
		record.Children = append(record.Children, c)
		record.Events.Push(EventStatus, fmt.Sprintf("Discovered new child PID=%d", c.PID), "")
	}
}

// isTreeDead reports whether the top-level process and every known child
// handle report not-running.
func (m *TreeMonitor) isTreeDead(record *NodeRecord, topAlive bool) bool {
	if topAlive {
		return false
	}
	for _, c := range record.Children {
		if processAlive(c.PID) {
			return false
		}
	}
	return true
}

// processAlive reports whether pid refers to a running process.
func processAlive(pid int) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil {
		return false
	}
	return running
}
