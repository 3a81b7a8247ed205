package bpmn

import (
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsOnTerminalActivityAreIgnored(t *testing.T) {
	commands := map[string]func(id string) any{
		"cancel":    func(id string) any { return CancelActivityCommand{Ref: RefById(id)} },
		"terminate": func(id string) any { return TerminateActivityCommand{Ref: RefById(id)} },
		"run":       func(id string) any { return RunActivityCommand{Ref: RefById(id)} },
		"retry":     func(id string) any { return RetryActivityCommand{Ref: RefById(id)} },
	}
	for name, command := range commands {
		t.Run(name, func(t *testing.T) {
			// setup
			engine, _ := newTestEngine(t)
			deployFile(t, engine, "simple-task.yaml")
			process := startProcess(t, engine, "SimpleTaskProcess", nil)

			// given
			start := activityOf(t, engine, process.Id, "start")
			require.Equal(t, runtime.ActivityCompleted, start.State)
			counter := observeCommands(engine)

			// when
			err := engine.Dispatcher().Dispatch(t.Context(), command(start.Id))
			waitIdle(t, engine)

			// then
			require.NoError(t, err)
			assert.Equal(t, 1, counter.get("total"), "nothing follows a command on a terminal activity")
			assert.Equal(t, runtime.ActivityCompleted, activityOf(t, engine, process.Id, "start").State)
			assert.Equal(t, runtime.ActivityScheduled, activityOf(t, engine, process.Id, "task").State)
			assert.Equal(t, runtime.ProcessActive, processState(t, engine, process.Id))
		})
	}
}

func TestCommandsOnTerminatedTaskAreIgnored(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "simple-task.yaml")
	process := startProcess(t, engine, "SimpleTaskProcess", nil)
	require.NoError(t, engine.TerminateProcess(t.Context(), process.Id))
	waitIdle(t, engine)

	// given
	task := activityOf(t, engine, process.Id, "task")
	require.Equal(t, runtime.ActivityTerminated, task.State)
	counter := observeCommands(engine)

	// when
	for _, cmd := range []any{
		CancelActivityCommand{Ref: RefById(task.Id)},
		TerminateActivityCommand{Ref: RefById(task.Id)},
		RunActivityCommand{Ref: RefById(task.Id)},
		RetryActivityCommand{Ref: RefById(task.Id)},
	} {
		require.NoError(t, engine.Dispatcher().Dispatch(t.Context(), cmd))
	}
	waitIdle(t, engine)

	// then
	assert.Equal(t, 4, counter.get("total"))
	assert.Zero(t, counter.get("handleCompletion"))
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, engine, process.Id, "task").State)
	assert.Equal(t, runtime.ProcessTerminated, processState(t, engine, process.Id))
}

func TestDeletingCompletedActivityKeepsIt(t *testing.T) {
	// setup
	engine, store := newTestEngine(t)
	deployFile(t, engine, "simple-task.yaml")
	process := startProcess(t, engine, "SimpleTaskProcess", nil)
	start := activityOf(t, engine, process.Id, "start")

	// when
	err := engine.Dispatcher().Dispatch(t.Context(), DeleteActivityCommand{Ref: RefById(start.Id)})

	// then
	require.NoError(t, err)
	kept, err := store.FindActivityById(t.Context(), start.Id)
	require.NoError(t, err)
	assert.Equal(t, runtime.ActivityCompleted, kept.State)
}

func TestDeletingScheduledActivityRemovesIt(t *testing.T) {
	// setup
	engine, store := newTestEngine(t)
	deployFile(t, engine, "simple-task.yaml")
	process := startProcess(t, engine, "SimpleTaskProcess", nil)
	task := activityOf(t, engine, process.Id, "task")
	require.Equal(t, runtime.ActivityScheduled, task.State)

	// when
	err := engine.Dispatcher().Dispatch(t.Context(), DeleteActivityCommand{Ref: RefById(task.Id)})

	// then
	require.NoError(t, err)
	_, err = store.FindActivityById(t.Context(), task.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	tasks, err := engine.PollExternalTasks(t.Context(), "simple-task", "", 50)
	require.NoError(t, err)
	for _, polled := range tasks {
		assert.NotEqual(t, task.Id, polled.Id)
	}
}

func TestDeletingUnknownActivityFails(t *testing.T) {
	// when
	err := bpmnEngine.Dispatcher().Dispatch(t.Context(), DeleteActivityCommand{Ref: RefById("missing")})

	// then
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestTerminatingActivitiesFromCallerEndsAllOfThem(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "order-submitted.yaml")
	process := startProcess(t, engine, "OrderSubmittedProcess", nil)
	activities := []runtime.ActivityExecution{
		activityOf(t, engine, process.Id, "notifyCustomer"),
		activityOf(t, engine, process.Id, "notifyWarehouse"),
	}

	// when
	err := engine.Dispatcher().Dispatch(t.Context(), TerminateActivitiesCommand{Activities: activities})

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, engine, process.Id, "notifyCustomer").State)
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, engine, process.Id, "notifyWarehouse").State)
}

func TestTerminatingProcessEndsNestedSubprocessesOnce(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "nested-subprocess.yaml")
	process := startProcess(t, engine, "NestedSubprocessProcess", nil)
	wait := pollTask(t, engine, "nested-wait", process.Id)
	require.NoError(t, engine.CompleteExternalTask(t.Context(), wait.Id, nil))
	waitIdle(t, engine)
	counter := observeCommands(engine)

	// when
	require.NoError(t, engine.TerminateProcess(t.Context(), process.Id))
	waitIdle(t, engine)

	// then
	assert.Equal(t, runtime.ProcessTerminated, processState(t, engine, process.Id))
	for _, id := range []string{"outer", "inner", "innerTask"} {
		assert.Equal(t, runtime.ActivityTerminated, activityOf(t, engine, process.Id, id).State, id)
	}
	assert.Equal(t, 3, counter.get("terminate"), "each execution is terminated through its outermost scope only")
}
