package bpmn

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageCorrelatedByBusinessKeyCompletesReceiveTask(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "message.yaml")
	process := startProcess(t, bpmnEngine, "PaymentProcess", nil)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "waitPayment").State)

	// when
	correlated, err := bpmnEngine.CorrelateMessage(t.Context(), "payment-received", process.BusinessKey, nil, map[string]any{"paid": 42})
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, process.Id, correlated.Id)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "waitPayment").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, float64(42), processVariables(t, bpmnEngine, process.Id)["paid"])
}

func TestMessageCorrelatedByVariables(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "message.yaml")
	orderRef := uuid.NewString()
	process := startProcess(t, bpmnEngine, "PaymentProcess", map[string]any{"orderRef": orderRef})

	// when
	correlated, err := bpmnEngine.CorrelateMessage(t.Context(), "payment-received", "", map[string]any{"orderRef": orderRef}, nil)
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, process.Id, correlated.Id)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
}

func TestMessageMatchingTwoProcessesIsRejected(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "message.yaml")
	businessKey := "shared-" + uuid.NewString()
	first, err := bpmnEngine.StartProcessByKey(t.Context(), "PaymentProcess", businessKey, nil)
	require.NoError(t, err)
	second, err := bpmnEngine.StartProcessByKey(t.Context(), "PaymentProcess", businessKey, nil)
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)

	// when
	_, err = bpmnEngine.CorrelateMessage(t.Context(), "payment-received", businessKey, nil, nil)
	waitIdle(t, bpmnEngine)

	// then
	assert.ErrorIs(t, err, ErrAmbiguousCorrelation)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, first.Id, "waitPayment").State)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, second.Id, "waitPayment").State)

	// cleanup
	require.NoError(t, bpmnEngine.TerminateProcess(t.Context(), first.Id))
	require.NoError(t, bpmnEngine.TerminateProcess(t.Context(), second.Id))
}

func TestMessageWithoutMatchingProcessFails(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "message.yaml")

	// when
	_, err := bpmnEngine.CorrelateMessage(t.Context(), "payment-received", uuid.NewString(), nil, nil)

	// then
	assert.ErrorIs(t, err, ErrProcessNotFound)
}

func TestMessageForFinishedProcessFails(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "message.yaml")
	process := startProcess(t, bpmnEngine, "PaymentProcess", nil)
	_, err := bpmnEngine.CorrelateMessage(t.Context(), "payment-received", process.BusinessKey, nil, nil)
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)
	require.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))

	// when
	_, err = bpmnEngine.CorrelateMessage(t.Context(), "payment-received", process.BusinessKey, nil, nil)

	// then
	assert.ErrorIs(t, err, ErrProcessNotActive)
}

func TestMessageWithoutNameIsRejected(t *testing.T) {
	// when
	_, err := bpmnEngine.CorrelateMessage(t.Context(), "", "any", nil, nil)

	// then
	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestMessageStartEventStartsNewProcess(t *testing.T) {
	// setup
	deployed := deployFile(t, bpmnEngine, "message-start.yaml")
	businessKey := uuid.NewString()

	// when
	process, err := bpmnEngine.CorrelateMessage(t.Context(), "order-placed", businessKey, nil, map[string]any{"item": "book"})
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)

	// then
	require.NotNil(t, process)
	assert.Equal(t, deployed[0].Id, process.DefinitionId)
	assert.Equal(t, businessKey, process.BusinessKey)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "placedEnd").State)
	assert.Equal(t, "book", processVariables(t, bpmnEngine, process.Id)["item"])
	_, err = engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "manualEnd")
	assert.Error(t, err, "the plain start event is not used")
}

func TestConditionalCatchEventWaitsForItsCondition(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "conditional.yaml")

	// given
	process := startProcess(t, bpmnEngine, "ConditionalProcess", map[string]any{"approved": false})
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "waitApproval").State)

	// when
	require.NoError(t, bpmnEngine.SetVariables(t.Context(), process.Id, map[string]any{"approved": true}))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "waitApproval").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
}

func TestConditionalCatchEventPassesWhenConditionAlreadyHolds(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "conditional.yaml")

	// when
	process := startProcess(t, bpmnEngine, "ConditionalProcess", map[string]any{"approved": true})

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
}

func TestTimerBoundaryEventInterruptsSlowTask(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "timer-boundary.yaml")
	process := startProcess(t, engine, "TimerBoundaryProcess", nil)
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, engine, process.Id, "slowTask").State)
	armed := activityOf(t, engine, process.Id, "deadline")
	assert.Equal(t, runtime.ActivityActive, armed.State)
	assert.NotNil(t, armed.Timeout)

	// when
	job, err := engine.RunJob(t.Context(), JobTypeTimeoutScan)
	require.NoError(t, err)
	waitIdle(t, engine)

	// then
	assert.Equal(t, runtime.JobCompleted, job.State)
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, engine, process.Id, "slowTask").State)
	deadline := activityOf(t, engine, process.Id, "deadline")
	assert.Equal(t, armed.Id, deadline.Id, "the armed execution is the one that fires")
	assert.Equal(t, runtime.ActivityCompleted, deadline.State)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, engine, process.Id, "timedOut").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, engine, process.Id))
}

func TestTimerBoundaryEventIsDisarmedWhenTaskCompletes(t *testing.T) {
	// setup
	engine, store := newTestEngine(t)
	deployFile(t, engine, "timer-boundary.yaml")
	process := startProcess(t, engine, "TimerBoundaryProcess", nil)

	// when
	task := pollTask(t, engine, "timer-slow", process.Id)
	require.NoError(t, engine.CompleteExternalTask(t.Context(), task.Id, nil))
	waitIdle(t, engine)

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, engine, process.Id))
	activities, err := store.FindActivitiesByProcessId(t.Context(), process.Id)
	require.NoError(t, err)
	for _, a := range activities {
		assert.NotEqual(t, "deadline", a.DefinitionId, "an unfired timer leaves no execution behind")
	}
}

func TestExternalTaskPastItsTimeoutFails(t *testing.T) {
	// setup
	engine, _ := newTestEngine(t)
	deployFile(t, engine, "task-timeout.yaml")
	process := startProcess(t, engine, "TaskTimeoutProcess", nil)

	// when
	job, err := engine.RunJob(t.Context(), JobTypeTimeoutScan)
	require.NoError(t, err)
	waitIdle(t, engine)

	// then
	assert.Equal(t, runtime.JobCompleted, job.State)
	task := activityOf(t, engine, process.Id, "task")
	assert.Equal(t, runtime.ActivityFailed, task.State)
	require.NotNil(t, task.Failure)
	assert.Equal(t, "Timeout", task.Failure.Reason)
	assert.Equal(t, runtime.ProcessIncident, processState(t, engine, process.Id))
}

func TestInterruptingEventSubprocessReplacesRunningFlow(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "event-subprocess.yaml")
	process := startProcess(t, bpmnEngine, "CancellableOrderProcess", nil)
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "work").State)

	// when
	_, err := bpmnEngine.CorrelateMessage(t.Context(), "cancel-order", process.BusinessKey, nil, map[string]any{"reason": "customer"})
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, bpmnEngine, process.Id, "work").State)
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "cancelTask").State)
	assert.Equal(t, runtime.ProcessActive, processState(t, bpmnEngine, process.Id))

	// when
	task := pollTask(t, bpmnEngine, "cancel-order", process.Id)
	assert.Equal(t, "customer", task.Variables["reason"])
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), task.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "onCancel").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	_, err = engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "end")
	assert.Error(t, err)
}
