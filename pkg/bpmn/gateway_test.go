package bpmn

import (
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusiveGatewayTakesDefaultPathWhenNoConditionHolds(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "order-review.yaml")

	// when
	process := startProcess(t, bpmnEngine, "OrderReviewProcess", map[string]any{"amount": 50})

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "approved").State)
	_, err := engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "review")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExclusiveGatewayTakesMatchingCondition(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "order-review.yaml")

	// when
	process := startProcess(t, bpmnEngine, "OrderReviewProcess", map[string]any{"amount": 150})

	// then
	assert.Equal(t, runtime.ProcessActive, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "review").State)
	_, err := engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "approved")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// cleanup
	require.NoError(t, bpmnEngine.TerminateProcess(t.Context(), process.Id))
}

func TestExclusiveGatewayWithoutValidPathRaisesIncident(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "exclusive-no-default.yaml")

	// when
	process := startProcess(t, bpmnEngine, "ExclusiveNoDefaultProcess", map[string]any{"amount": 50})

	// then
	route := activityOf(t, bpmnEngine, process.Id, "route")
	assert.Equal(t, runtime.ActivityFailed, route.State)
	require.NotNil(t, route.Failure)
	assert.Equal(t, "No valid path", route.Failure.Reason)
	assert.Equal(t, runtime.ProcessIncident, processState(t, bpmnEngine, process.Id))
}

func TestInclusiveGatewayJoinsEverySatisfiedPath(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "inclusive.yaml")

	// given
	process := startProcess(t, bpmnEngine, "InclusiveProcess", map[string]any{"a": true, "b": true})
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "taskA").State)
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "taskB").State)
	_, err := engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "taskC")
	assert.ErrorIs(t, err, storage.ErrNotFound, "the default path is only taken when nothing else matched")

	// when
	taskA := pollTask(t, bpmnEngine, "inclusive-a", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), taskA.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessActive, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "join").State)

	// when
	taskB := pollTask(t, bpmnEngine, "inclusive-b", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), taskB.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "end").State)
	joins := executionsOf(t, bpmnEngine, process.Id, "join")
	require.Len(t, joins, 1, "the second arrival is merged into the waiting one")
	assert.Equal(t, runtime.ActivityCompleted, joins[0].State)
}

func TestInclusiveGatewayFallsBackToDefaultPath(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "inclusive.yaml")

	// given
	process := startProcess(t, bpmnEngine, "InclusiveProcess", map[string]any{"a": false, "b": false})

	// then
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "taskC").State)
	for _, id := range []string{"taskA", "taskB"} {
		_, err := engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, id)
	}

	// when
	taskC := pollTask(t, bpmnEngine, "inclusive-c", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), taskC.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
}

func TestEventBasedGatewayFirstEventWins(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "event-gateway.yaml")
	process := startProcess(t, bpmnEngine, "DecisionProcess", nil)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "approved").State)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "rejected").State)

	// when
	correlated, err := bpmnEngine.CorrelateMessage(t.Context(), "approve", process.BusinessKey, nil, nil)
	require.NoError(t, err)
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, process.Id, correlated.Id)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "approved").State)
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, bpmnEngine, process.Id, "rejected").State)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "decision").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	_, err = engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "rejectedEnd")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
