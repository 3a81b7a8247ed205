package bpmn

import (
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallActivityMapsVariablesInAndOut(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "call-activity.yaml")

	// given
	parent := startProcess(t, bpmnEngine, "FulfillmentProcess", map[string]any{"orderId": "order-7", "internal": "not passed"})
	callActivity := activityOf(t, bpmnEngine, parent.Id, "shipment")
	assert.Equal(t, runtime.ActivityActive, callActivity.State)

	child, err := engineStorage.FindProcessById(t.Context(), callActivity.Id)
	require.NoError(t, err)
	assert.Equal(t, parent.Id, child.ParentId)
	assert.Equal(t, parent.Id, child.RootProcessId)
	assert.Equal(t, parent.BusinessKey, child.BusinessKey)

	// when
	task := pollTask(t, bpmnEngine, "ship-order", child.Id)

	// then
	assert.Equal(t, "order-7", task.Variables["shipmentOrderId"])
	assert.NotContains(t, task.Variables, "internal")

	// when
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), task.Id, map[string]any{"trackingNumber": "TN-1", "carrier": "post"}))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, child.Id))
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, parent.Id))
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, parent.Id, "shipment").State)
	variables := processVariables(t, bpmnEngine, parent.Id)
	assert.Equal(t, "TN-1", variables["trackingNumber"])
	assert.NotContains(t, variables, "carrier")
}

func TestCallActivityIncidentIsRetriedThroughParent(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "call-activity.yaml")
	parent := startProcess(t, bpmnEngine, "FulfillmentProcess", map[string]any{"orderId": "order-8"})
	callActivity := activityOf(t, bpmnEngine, parent.Id, "shipment")

	// given
	task := pollTask(t, bpmnEngine, "ship-order", callActivity.Id)
	require.NoError(t, bpmnEngine.FailExternalTask(t.Context(), task.Id, runtime.FailureOf("carrier down"), nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessIncident, processState(t, bpmnEngine, callActivity.Id))
	assert.Equal(t, runtime.ProcessIncident, processState(t, bpmnEngine, parent.Id))
	failed := activityOf(t, bpmnEngine, parent.Id, "shipment")
	assert.Equal(t, runtime.ActivityFailed, failed.State)
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "Process Incident", failed.Failure.Reason)

	// when
	require.NoError(t, bpmnEngine.RetryActivity(t.Context(), callActivity.Id))
	waitIdle(t, bpmnEngine)

	// then
	retried := activityOf(t, bpmnEngine, callActivity.Id, "ship")
	assert.Equal(t, runtime.ActivityScheduled, retried.State)
	assert.Equal(t, 1, retried.Retries)

	// when
	task = pollTask(t, bpmnEngine, "ship-order", callActivity.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), task.Id, map[string]any{"trackingNumber": "TN-2"}))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, callActivity.Id))
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, parent.Id))
	assert.Equal(t, "TN-2", processVariables(t, bpmnEngine, parent.Id)["trackingNumber"])
}

func TestTerminatingParentTerminatesCalledProcess(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "call-activity.yaml")
	parent := startProcess(t, bpmnEngine, "FulfillmentProcess", map[string]any{"orderId": "order-9"})
	callActivity := activityOf(t, bpmnEngine, parent.Id, "shipment")

	// when
	require.NoError(t, bpmnEngine.TerminateProcess(t.Context(), parent.Id))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ProcessTerminated, processState(t, bpmnEngine, parent.Id))
	assert.Equal(t, runtime.ProcessTerminated, processState(t, bpmnEngine, callActivity.Id))
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, bpmnEngine, callActivity.Id, "ship").State)
}
