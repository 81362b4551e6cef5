package nodeproc

import "testing"

func TestEventQueueDrainAllReturnsInOrder(t *testing.T) {
	q := NewEventQueue(10)
	q.Push(EventStatus, "first", "")
	q.Push(EventLog, "second", "stdout")

	drained := q.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 events, got %d", len(drained))
	}
	if drained[0].Message != "first" || drained[1].Message != "second" {
		t.Fatalf("expected order preserved, got %+v", drained)
	}
}

func TestEventQueueDrainIsDestructive(t *testing.T) {
	q := NewEventQueue(10)
	q.Push(EventStatus, "only once", "")

	first := q.DrainAll()
	if len(first) != 1 {
		t.Fatalf("expected 1 event, got %d", len(first))
	}

	second := q.DrainAll()
	if len(second) != 0 {
		t.Fatalf("expected drain to be empty after prior drain, got %d", len(second))
	}
}

func TestEventQueueOverflowDropsOldestAndWarns(t *testing.T) {
	q := NewEventQueue(2)
	q.Push(EventLog, "one", "stdout")
	q.Push(EventLog, "two", "stdout") // queue now full
	q.Push(EventLog, "three", "stdout") // overflow: evict "one", append "three", then warning evicts "two"

	drained := q.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 events after overflow, got %d: %+v", len(drained), drained)
	}
	if drained[0].Message != "three" {
		t.Fatalf("expected the new event to survive overflow, got %+v", drained)
	}
	if drained[1].Kind != EventWarning {
		t.Fatalf("expected a warning event to follow, got %+v", drained[1])
	}
}

func TestEventQueueTailIsNonDestructive(t *testing.T) {
	q := NewEventQueue(10)
	tail, cancel := q.Tail()
	defer cancel()

	q.Push(EventStatus, "tailed", "")

	select {
	case ev := <-tail:
		if ev.Message != "tailed" {
			t.Fatalf("expected tailed event, got %+v", ev)
		}
	default:
		t.Fatal("expected an event on the tail channel")
	}

	drained := q.DrainAll()
	if len(drained) != 1 {
		t.Fatalf("expected the drain queue to be unaffected by tailing, got %d", len(drained))
	}
}

func TestEventQueueMinimumCapacity(t *testing.T) {
	q := NewEventQueue(0)
	if q.capacity != 1 {
		t.Fatalf("expected capacity to clamp to 1, got %d", q.capacity)
	}
}
