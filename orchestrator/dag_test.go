package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockRun returns a task body that simulates work
func mockRun(duration time.Duration, shouldFail bool) RunFunc {
	return func(ctx context.Context) error {
		select {
		case <-time.After(duration):
		case <-ctx.Done():
			return ctx.Err()
		}
		if shouldFail {
			return errors.New("mock task failed")
		}
		return nil
	}
}

func TestDAGOrchestrator_SimpleSequence(t *testing.T) {
	orch := NewDAGOrchestrator([]ResourceConstraint{
		{Type: ResourceCPU, MaxSlots: 2},
	})

	// Create tasks: A -> B -> C (sequential)
	taskA := &Task{ID: "A", Run: mockRun(10*time.Millisecond, false), Resource: ResourceCPU}
	taskB := &Task{ID: "B", Run: mockRun(10*time.Millisecond, false), Dependencies: []string{"A"}, Resource: ResourceCPU}
	taskC := &Task{ID: "C", Run: mockRun(10*time.Millisecond, false), Dependencies: []string{"B"}, Resource: ResourceCPU}

	for _, task := range []*Task{taskA, taskB, taskC} {
		if err := orch.AddTask(task); err != nil {
			t.Fatalf("Failed to add task %s: %v", task.ID, err)
		}
	}

	results, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("Expected task %s to succeed, got %v", r.TaskID, r.Error)
		}
	}

	// Verify execution order (B should start after A, C after B)
	if taskB.StartTime.Before(taskA.EndTime) {
		t.Errorf("Task B should start after task A completes")
	}
	if taskC.StartTime.Before(taskB.EndTime) {
		t.Errorf("Task C should start after task B completes")
	}
}

func TestDAGOrchestrator_Parallel(t *testing.T) {
	orch := NewDAGOrchestrator([]ResourceConstraint{
		{Type: ResourceProbe, MaxSlots: 3},
	})

	var running, peak int32
	run := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	for _, id := range []string{"A", "B", "C"} {
		if err := orch.AddTask(&Task{ID: id, Run: run, Resource: ResourceProbe}); err != nil {
			t.Fatalf("Failed to add task %s: %v", id, err)
		}
	}

	results, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}
	if peak != 3 {
		t.Errorf("Expected 3 tasks running at once, got %d", peak)
	}
}

func TestDAGOrchestrator_ResourceConstraint(t *testing.T) {
	// Only 1 I/O task at a time
	orch := NewDAGOrchestrator([]ResourceConstraint{
		{Type: ResourceIO, MaxSlots: 1},
	})

	var running, peak int32
	run := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	for _, id := range []string{"A", "B", "C"} {
		_ = orch.AddTask(&Task{ID: id, Run: run, Resource: ResourceIO})
	}

	if _, err := orch.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if peak != 1 {
		t.Errorf("Expected I/O tasks to run one at a time, peak was %d", peak)
	}
}

func TestDAGOrchestrator_CycleDetection(t *testing.T) {
	orch := NewDAGOrchestrator(nil)

	_ = orch.AddTask(&Task{ID: "A", Run: mockRun(0, false), Dependencies: []string{"C"}})
	_ = orch.AddTask(&Task{ID: "B", Run: mockRun(0, false), Dependencies: []string{"A"}})
	_ = orch.AddTask(&Task{ID: "C", Run: mockRun(0, false), Dependencies: []string{"B"}})

	if _, err := orch.Execute(context.Background()); err == nil {
		t.Error("Expected cycle detection error")
	}
}

func TestDAGOrchestrator_MissingDependency(t *testing.T) {
	orch := NewDAGOrchestrator(nil)
	_ = orch.AddTask(&Task{ID: "A", Run: mockRun(0, false), Dependencies: []string{"ghost"}})

	if _, err := orch.Execute(context.Background()); err == nil {
		t.Error("Expected error for missing dependency")
	}
}

func TestDAGOrchestrator_AddTaskErrors(t *testing.T) {
	orch := NewDAGOrchestrator(nil)

	if err := orch.AddTask(&Task{ID: "A"}); err == nil {
		t.Error("Expected error for task without run function")
	}
	if err := orch.AddTask(&Task{ID: "A", Run: mockRun(0, false)}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := orch.AddTask(&Task{ID: "A", Run: mockRun(0, false)}); err == nil {
		t.Error("Expected error for duplicate task")
	}
}

func TestDAGOrchestrator_FailedTask(t *testing.T) {
	orch := NewDAGOrchestrator([]ResourceConstraint{
		{Type: ResourceCPU, MaxSlots: 2},
	})

	// A fails, B depends on A, C is independent
	_ = orch.AddTask(&Task{ID: "A", Run: mockRun(10*time.Millisecond, true), Resource: ResourceCPU})
	_ = orch.AddTask(&Task{ID: "B", Run: mockRun(10*time.Millisecond, false), Dependencies: []string{"A"}, Resource: ResourceCPU})
	_ = orch.AddTask(&Task{ID: "C", Run: mockRun(10*time.Millisecond, false), Resource: ResourceCPU})

	results, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	byID := make(map[string]TaskResult)
	for _, r := range results {
		byID[r.TaskID] = r
	}
	if byID["A"].Success || byID["A"].Error == nil {
		t.Error("Task A should have failed")
	}
	if byID["B"].Success {
		t.Error("Task B should fail because its dependency failed")
	}
	if !byID["C"].Success {
		t.Errorf("Task C should succeed, got %v", byID["C"].Error)
	}

	if status, _ := orch.GetTaskStatus("B"); status != TaskFailed {
		t.Errorf("Expected B failed, got %s", status)
	}
}

func TestDAGOrchestrator_Cancellation(t *testing.T) {
	orch := NewDAGOrchestrator([]ResourceConstraint{
		{Type: ResourceIO, MaxSlots: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	_ = orch.AddTask(&Task{ID: "A", Run: func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}, Resource: ResourceIO})
	_ = orch.AddTask(&Task{ID: "B", Run: mockRun(time.Second, false), Resource: ResourceIO})

	results, err := orch.Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Success {
			t.Errorf("Task %s should not succeed after cancellation", r.TaskID)
		}
	}
}

func TestDAGOrchestrator_Empty(t *testing.T) {
	results, err := NewDAGOrchestrator(nil).Execute(context.Background())
	if err != nil || len(results) != 0 {
		t.Errorf("Expected no results and no error, got %v (%v)", results, err)
	}
}

func TestDAGOrchestrator_ProgressCallback(t *testing.T) {
	orch := NewDAGOrchestrator(nil)
	for _, id := range []string{"A", "B", "C"} {
		_ = orch.AddTask(&Task{ID: id, Run: mockRun(5*time.Millisecond, false), Resource: ResourceCPU})
	}

	var calls []int
	orch.SetProgressCallback(func(completed, total int, task *Task) {
		if total != 3 {
			t.Errorf("Expected total 3, got %d", total)
		}
		calls = append(calls, completed)
	})

	if _, err := orch.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(calls) != 3 || calls[0] != 1 || calls[2] != 3 {
		t.Errorf("Expected progress 1..3, got %v", calls)
	}
}

func TestDAGOrchestrator_GetStats(t *testing.T) {
	orch := NewDAGOrchestrator(nil)
	_ = orch.AddTask(&Task{ID: "A", Run: mockRun(0, false)})
	_ = orch.AddTask(&Task{ID: "B", Run: mockRun(0, true)})

	stats := orch.GetStats()
	if stats.Total != 2 || stats.Pending != 2 {
		t.Errorf("Expected 2 pending tasks, got %+v", stats)
	}

	if _, err := orch.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	stats = orch.GetStats()
	if stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("Expected 1 completed and 1 failed, got %+v", stats)
	}

	if _, err := orch.GetTaskStatus("ghost"); err == nil {
		t.Error("Expected error for unknown task")
	}
}
