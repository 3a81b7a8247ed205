package bpmn

import (
	"sync"
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandCounter counts dispatched commands by their Go type name.
type commandCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func observeCommands(engine *Engine) *commandCounter {
	counter := &commandCounter{counts: map[string]int{}}
	engine.Dispatcher().Observe(func(cmd any) {
		counter.mu.Lock()
		defer counter.mu.Unlock()
		counter.counts["total"]++
		switch cmd.(type) {
		case RunActivityCommand:
			counter.counts["run"]++
		case CompleteActivityCommand:
			counter.counts["complete"]++
		case CompleteProcessCommand:
			counter.counts["completeProcess"]++
		case HandleActivityCompletionCommand:
			counter.counts["handleCompletion"]++
		case DeleteActivityCommand:
			counter.counts["delete"]++
		case TerminateActivityCommand:
			counter.counts["terminate"]++
		}
	})
	return counter
}

func (c *commandCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func TestCompletionRunsEveryNextActivity(t *testing.T) {
	// setup
	engine, store := newTestEngine(t)
	deployFile(t, engine, "order-submitted.yaml")
	started := startProcess(t, engine, "OrderSubmittedProcess", nil)
	split, err := engine.loadActivity(t.Context(), RefByDefinition(started.Id, "split"))
	require.NoError(t, err)
	notifyCustomer, ok := split.Process.Definition.GetActivityById("notifyCustomer")
	require.True(t, ok)
	notifyWarehouse, ok := split.Process.Definition.GetActivityById("notifyWarehouse")
	require.True(t, ok)
	counter := observeCommands(engine)

	// when
	err = engine.Dispatcher().Dispatch(t.Context(), HandleActivityCompletionCommand{
		Activity: split,
		Next:     []*model.ActivityDefinition{notifyCustomer, notifyWarehouse},
	})
	waitIdle(t, engine)

	// then
	require.NoError(t, err)
	assert.Equal(t, 2, counter.get("run"))
	assert.Zero(t, counter.get("complete"), "a top level activity has no parent to complete")
	assert.Zero(t, counter.get("completeProcess"), "next activities carry the flow on")
	activities, err := store.FindActivitiesByProcessId(t.Context(), started.Id)
	require.NoError(t, err)
	scheduled := map[string]int{}
	for _, a := range activities {
		if a.State == runtime.ActivityScheduled {
			scheduled[a.DefinitionId]++
		}
	}
	assert.Equal(t, 2, scheduled["notifyCustomer"])
	assert.Equal(t, 2, scheduled["notifyWarehouse"])
	assert.Equal(t, runtime.ProcessActive, processState(t, engine, started.Id))
}

func TestCompletionWithoutNextOrParentCompletesProcessOnce(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "simple-task.yaml")
	started := startProcess(t, engine, "SimpleTaskProcess", nil)
	start, err := engine.loadActivity(t.Context(), RefByDefinition(started.Id, "start"))
	require.NoError(t, err)
	require.Equal(t, runtime.ActivityCompleted, start.State)
	counter := observeCommands(engine)

	// when
	err = engine.Dispatcher().Dispatch(t.Context(), HandleActivityCompletionCommand{Activity: start})
	waitIdle(t, engine)

	// then
	require.NoError(t, err)
	assert.Equal(t, 1, counter.get("completeProcess"))
	assert.Zero(t, counter.get("complete"))
	assert.Zero(t, counter.get("run"))
	assert.Equal(t, runtime.ProcessActive, processState(t, engine, started.Id), "the task is still scheduled")
}

func TestCompletionWithoutRunningParentFails(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "nested-subprocess.yaml")
	started := startProcess(t, engine, "NestedSubprocessProcess", nil)
	process, err := engine.loadProcess(t.Context(), started.Id)
	require.NoError(t, err)
	definition, ok := process.Definition.GetActivityById("innerTask")
	require.True(t, ok)

	// given
	orphan := engine.newActivity(process, definition)
	orphan.State = runtime.ActivityCompleted
	require.NoError(t, engine.saveActivity(t.Context(), orphan))
	counter := observeCommands(engine)

	// when
	err = engine.Dispatcher().Dispatch(t.Context(), HandleActivityCompletionCommand{Activity: orphan})
	waitIdle(t, engine)

	// then
	assert.ErrorIs(t, err, ErrActivityNotFound)
	assert.Zero(t, counter.get("complete"))
	assert.Zero(t, counter.get("completeProcess"))
}

func TestTerminateEndEventTerminatesProcess(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "terminate-end.yaml")

	// when
	process := startProcess(t, bpmnEngine, "TerminateEndProcess", nil)

	// then
	assert.Equal(t, runtime.ProcessTerminated, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, bpmnEngine, process.Id, "longTask").State)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "stop").State)
	tasks, err := bpmnEngine.PollExternalTasks(t.Context(), "terminate-long", "", 50)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.NotEqual(t, process.Id, task.ProcessId)
	}
}

func TestNestedSubprocessesCompleteInsideOut(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "nested-subprocess.yaml")
	process := startProcess(t, bpmnEngine, "NestedSubprocessProcess", nil)

	// when
	wait := pollTask(t, bpmnEngine, "nested-wait", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), wait.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "outer").State)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "inner").State)
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "innerTask").State)

	// when
	inner := pollTask(t, bpmnEngine, "nested-inner", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), inner.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	for _, id := range []string{"innerEnd", "inner", "outerEnd", "outer", "end"} {
		assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, id).State, id)
	}
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, true, processVariables(t, bpmnEngine, process.Id)["checked"])
}
