package nodeproc

import (
	"testing"
	"time"

	apperrors "ros-node-supervisor/internal/common/errors"
)

func TestRegistryTerminateUnknownNodeIsNoOp(t *testing.T) {
	r := newMonitorTestRegistry(t)

	if err := r.Terminate("does-not-exist"); err != nil {
		t.Fatalf("expected terminate of an unknown node to be a no-op, got %v", err)
	}
}

func TestRegistryGetEventsUnknownNodeIsNotFound(t *testing.T) {
	r := newMonitorTestRegistry(t)

	_, err := r.GetEvents("does-not-exist")
	if err == nil {
		t.Fatal("expected an error for an unknown node")
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != apperrors.ErrCodeNotFound {
		t.Fatalf("expected a NotFound AppError, got %v", err)
	}
}

func TestRegistryLaunchRejectsNameCollision(t *testing.T) {
	r := newMonitorTestRegistry(t)
	insertRunningRecord(t, r, "dup", "sleep 5")
	defer func() {
		record, _ := r.get("dup")
		_ = signalGroup(record.ProcessGroupID, 9)
		<-record.exited
	}()

	_, err := r.Launch(NodeRequest{Name: "dup", Package: "p", Executable: "x"})
	if err == nil {
		t.Fatal("expected launching a duplicate name to fail")
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != apperrors.ErrCodeBadRequest {
		t.Fatalf("expected an AlreadyExists AppError, got %v", err)
	}
}

func TestRegistryListEmpty(t *testing.T) {
	r := newMonitorTestRegistry(t)
	if got := r.List(); len(got) != 0 {
		t.Fatalf("expected an empty registry to list no nodes, got %v", got)
	}
}

func TestRegistryTerminateRunningNode(t *testing.T) {
	r := newMonitorTestRegistry(t)
	insertRunningRecord(t, r, "graceful", "trap 'exit 0' INT; sleep 30")

	if err := r.Terminate("graceful"); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(r.List()) != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(r.List()) != 0 {
		t.Fatal("expected the terminated node to be evicted")
	}
}
