// Package orchestrator runs a graph of dependent tasks with per-resource
// concurrency limits. The library uses it to probe imported files in
// parallel and rebuild derived state once every probe has finished.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResourceType represents different kinds of limited resources
type ResourceType string

const (
	ResourceProbe ResourceType = "probe" // External probe processes (parallel, bounded)
	ResourceCPU   ResourceType = "cpu"   // In-process computation (parallel)
	ResourceIO    ResourceType = "io"    // File I/O (sequential)
)

// RunFunc is the work of a task.
type RunFunc func(ctx context.Context) error

// Task represents a unit of work with dependencies and resource requirements
type Task struct {
	ID           string
	Run          RunFunc
	Dependencies []string // IDs of tasks that must complete before this one
	Resource     ResourceType
	Status       TaskStatus
	Error        error
	StartTime    time.Time
	EndTime      time.Time
}

// TaskStatus represents the current state of a task
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskReady              // Dependencies met, waiting for resource
	TaskRunning
	TaskCompleted
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	}
	return "unknown"
}

// TaskResult is the outcome of one task.
type TaskResult struct {
	TaskID   string
	Success  bool
	Error    error
	Duration time.Duration
}

// ResourceConstraint defines limits for a resource type
type ResourceConstraint struct {
	Type     ResourceType
	MaxSlots int // Maximum concurrent tasks for this resource
}

// DAGOrchestrator manages task execution with dependencies and resource constraints
type DAGOrchestrator struct {
	tasks       map[string]*Task
	order       []string
	constraints map[ResourceType]*ResourceConstraint

	// Resource tracking
	activeSlots map[ResourceType]int
	slotsMutex  sync.Mutex

	// Task queue and completion tracking
	tasksMutex sync.RWMutex
	completeCh chan string // Task IDs that completed

	// Progress tracking
	onProgress func(completed, total int, task *Task)

	pollInterval time.Duration
}

// NewDAGOrchestrator creates a new orchestrator with resource constraints
func NewDAGOrchestrator(constraints []ResourceConstraint) *DAGOrchestrator {
	constraintMap := make(map[ResourceType]*ResourceConstraint)
	for i := range constraints {
		constraintMap[constraints[i].Type] = &constraints[i]
	}

	return &DAGOrchestrator{
		tasks:        make(map[string]*Task),
		constraints:  constraintMap,
		activeSlots:  make(map[ResourceType]int),
		pollInterval: 5 * time.Millisecond,
	}
}

// AddTask adds a task to the orchestrator
func (o *DAGOrchestrator) AddTask(task *Task) error {
	o.tasksMutex.Lock()
	defer o.tasksMutex.Unlock()

	if task.Run == nil {
		return fmt.Errorf("task %s has no run function", task.ID)
	}
	if _, exists := o.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}

	task.Status = TaskPending
	o.tasks[task.ID] = task
	o.order = append(o.order, task.ID)
	return nil
}

// SetProgressCallback sets a callback for progress updates
func (o *DAGOrchestrator) SetProgressCallback(callback func(completed, total int, task *Task)) {
	o.onProgress = callback
}

// Execute runs all tasks respecting dependencies and resource constraints.
//
// A failed task fails every task that depends on it. When ctx is cancelled,
// tasks that have not started fail with the context's error; running tasks
// receive the cancelled context. Results are returned in completion order.
func (o *DAGOrchestrator) Execute(ctx context.Context) ([]TaskResult, error) {
	// Validate DAG (no cycles, all dependencies exist)
	if err := o.validateDAG(); err != nil {
		return nil, err
	}

	totalTasks := len(o.tasks)
	if totalTasks == 0 {
		return nil, nil
	}
	o.completeCh = make(chan string, totalTasks)

	results := make([]TaskResult, 0, totalTasks)
	doneCh := make(chan struct{})

	// Completion handler goroutine
	go func() {
		defer close(doneCh)
		for completed := 1; completed <= totalTasks; completed++ {
			taskID := <-o.completeCh

			o.tasksMutex.RLock()
			task := o.tasks[taskID]
			result := TaskResult{
				TaskID:   task.ID,
				Success:  task.Status == TaskCompleted,
				Error:    task.Error,
				Duration: task.EndTime.Sub(task.StartTime),
			}
			o.tasksMutex.RUnlock()

			results = append(results, result)
			if o.onProgress != nil {
				o.onProgress(completed, totalTasks, task)
			}
		}
	}()

	// Start scheduler goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.scheduler(ctx, &wg)
	}()

	// Wait for all tasks to complete
	<-doneCh
	wg.Wait()

	return results, ctx.Err()
}

// scheduler continuously checks for ready tasks and executes them
func (o *DAGOrchestrator) scheduler(ctx context.Context, wg *sync.WaitGroup) {
	for {
		if ctx.Err() != nil {
			o.failUnstarted(ctx.Err())
		}

		// Check if all tasks are done or blocked
		if o.allTasksCompleteOrBlocked() {
			return
		}

		for _, task := range o.getReadyTasks() {
			if !o.tryAcquireResource(task.Resource) {
				continue
			}
			o.tasksMutex.Lock()
			task.Status = TaskRunning
			task.StartTime = time.Now()
			o.tasksMutex.Unlock()

			wg.Add(1)
			go func(t *Task) {
				defer wg.Done()
				o.executeTask(ctx, t)
			}(task)
		}

		// Sleep briefly to avoid busy waiting
		time.Sleep(o.pollInterval)
	}
}

// getReadyTasks returns tasks that are ready to execute, in insertion order
func (o *DAGOrchestrator) getReadyTasks() []*Task {
	o.tasksMutex.Lock()
	defer o.tasksMutex.Unlock()

	ready := make([]*Task, 0)
	for _, id := range o.order {
		task := o.tasks[id]
		if task.Status == TaskPending && o.dependenciesMet(task) {
			task.Status = TaskReady
		}
		if task.Status == TaskReady {
			ready = append(ready, task)
		}
	}
	return ready
}

// dependenciesMet checks if all dependencies of a task are completed
func (o *DAGOrchestrator) dependenciesMet(task *Task) bool {
	for _, depID := range task.Dependencies {
		depTask, exists := o.tasks[depID]
		if !exists || depTask.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// tryAcquireResource attempts to acquire a resource slot
func (o *DAGOrchestrator) tryAcquireResource(resourceType ResourceType) bool {
	o.slotsMutex.Lock()
	defer o.slotsMutex.Unlock()

	constraint, exists := o.constraints[resourceType]
	if !exists {
		// No constraint, allow execution
		return true
	}

	if o.activeSlots[resourceType] < constraint.MaxSlots {
		o.activeSlots[resourceType]++
		return true
	}
	return false
}

// releaseResource releases a resource slot
func (o *DAGOrchestrator) releaseResource(resourceType ResourceType) {
	o.slotsMutex.Lock()
	defer o.slotsMutex.Unlock()

	if o.activeSlots[resourceType] > 0 {
		o.activeSlots[resourceType]--
	}
}

// executeTask runs a single task
func (o *DAGOrchestrator) executeTask(ctx context.Context, task *Task) {
	defer o.releaseResource(task.Resource)

	err := task.Run(ctx)

	o.tasksMutex.Lock()
	task.EndTime = time.Now()
	if err != nil {
		task.Status = TaskFailed
		task.Error = err
	} else {
		task.Status = TaskCompleted
	}
	o.tasksMutex.Unlock()

	// Notify completion
	o.completeCh <- task.ID
}

// failUnstarted fails every task that has not started yet.
func (o *DAGOrchestrator) failUnstarted(cause error) {
	o.tasksMutex.Lock()
	defer o.tasksMutex.Unlock()

	now := time.Now()
	for _, id := range o.order {
		task := o.tasks[id]
		if task.Status != TaskPending && task.Status != TaskReady {
			continue
		}
		task.Status = TaskFailed
		task.Error = cause
		task.StartTime, task.EndTime = now, now
		o.completeCh <- task.ID
	}
}

// allTasksCompleteOrBlocked checks if all tasks are done or permanently blocked
func (o *DAGOrchestrator) allTasksCompleteOrBlocked() bool {
	o.tasksMutex.Lock()
	defer o.tasksMutex.Unlock()

	done := true
	for _, id := range o.order {
		task := o.tasks[id]
		switch task.Status {
		case TaskCompleted, TaskFailed:
			continue
		case TaskRunning:
			done = false
		case TaskPending, TaskReady:
			// Check if task is blocked by failed dependencies
			if o.hasFailedDependency(task) {
				now := time.Now()
				task.Status = TaskFailed
				task.Error = fmt.Errorf("dependency failed")
				task.StartTime, task.EndTime = now, now
				o.completeCh <- task.ID
				continue
			}
			done = false
		}
	}
	return done
}

// hasFailedDependency checks if any dependency has failed
func (o *DAGOrchestrator) hasFailedDependency(task *Task) bool {
	for _, depID := range task.Dependencies {
		if depTask, exists := o.tasks[depID]; exists {
			if depTask.Status == TaskFailed {
				return true
			}
			// Recursively check if dependency has failed dependencies
			if o.hasFailedDependency(depTask) {
				return true
			}
		}
	}
	return false
}

// validateDAG validates the task graph
func (o *DAGOrchestrator) validateDAG() error {
	o.tasksMutex.RLock()
	defer o.tasksMutex.RUnlock()

	// Check all dependencies exist
	for _, task := range o.tasks {
		for _, depID := range task.Dependencies {
			if _, exists := o.tasks[depID]; !exists {
				return fmt.Errorf("task %s depends on non-existent task %s", task.ID, depID)
			}
		}
	}

	// Check for cycles (simple DFS-based cycle detection)
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(taskID string) bool
	hasCycle = func(taskID string) bool {
		visited[taskID] = true
		recStack[taskID] = true

		for _, depID := range o.tasks[taskID].Dependencies {
			if !visited[depID] {
				if hasCycle(depID) {
					return true
				}
			} else if recStack[depID] {
				return true
			}
		}

		recStack[taskID] = false
		return false
	}

	for _, taskID := range o.order {
		if !visited[taskID] && hasCycle(taskID) {
			return fmt.Errorf("cycle detected in task dependencies")
		}
	}
	return nil
}

// GetTaskStatus returns the status of a task
func (o *DAGOrchestrator) GetTaskStatus(taskID string) (TaskStatus, error) {
	o.tasksMutex.RLock()
	defer o.tasksMutex.RUnlock()

	task, exists := o.tasks[taskID]
	if !exists {
		return TaskPending, fmt.Errorf("task %s not found", taskID)
	}
	return task.Status, nil
}

// Stats counts tasks by status.
type Stats struct {
	Total     int
	Pending   int
	Ready     int
	Running   int
	Completed int
	Failed    int
}

// GetStats returns execution statistics
func (o *DAGOrchestrator) GetStats() Stats {
	o.tasksMutex.RLock()
	defer o.tasksMutex.RUnlock()

	stats := Stats{Total: len(o.tasks)}
	for _, task := range o.tasks {
		switch task.Status {
		case TaskPending:
			stats.Pending++
		case TaskReady:
			stats.Ready++
		case TaskRunning:
			stats.Running++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		}
	}
	return stats
}
