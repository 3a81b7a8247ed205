package bpmn

import (
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlerDefinition() *model.ProcessDefinition {
	definition := &model.ProcessDefinition{
		Id:  "handlers-1",
		Key: "HandlersProcess",
		Activities: []model.ActivityDefinition{
			{Id: "start", Type: model.ActivityTypeStartEvent, Outgoing: []string{"sub"}},
			{Id: "sub", Type: model.ActivityTypeSubprocess, Incoming: []string{"start"}},
			{Id: "subStart", ParentId: "sub", Type: model.ActivityTypeStartEvent},
			{
				Id:       "catchAll",
				Type:     model.ActivityTypeErrorBoundaryEvent,
				Boundary: &model.BoundaryCapability{AttachedToRef: "sub", CancelActivity: true},
			},
			{
				Id:       "exact",
				Type:     model.ActivityTypeErrorBoundaryEvent,
				Boundary: &model.BoundaryCapability{AttachedToRef: "sub", CancelActivity: true},
				Error:    &model.ErrorCapability{ErrorCode: "E1"},
			},
			{Id: "onError", Type: model.ActivityTypeEventSubprocess},
			{
				Id:       "onErrorStart",
				ParentId: "onError",
				Type:     model.ActivityTypeErrorStartEvent,
				Error:    &model.ErrorCapability{ErrorCode: "E2"},
			},
		},
	}
	definition.Index()
	return definition
}

func TestHandlerResolverPrefersExactCode(t *testing.T) {
	// setup
	resolver := &HandlerResolver{}
	definition := handlerDefinition()

	tests := []struct {
		name    string
		kind    handlerKind
		code    string
		scopeId string
		want    string
	}{
		{name: "exact boundary", kind: errorHandler, code: "E1", scopeId: "sub", want: "exact"},
		{name: "catch all boundary", kind: errorHandler, code: "E9", scopeId: "sub", want: "catchAll"},
		{name: "event subprocess on process level", kind: errorHandler, code: "E2", scopeId: "handlers-1", want: "onErrorStart"},
		{name: "boundary events are ignored on process level", kind: errorHandler, code: "E1", scopeId: "handlers-1"},
		{name: "other kind", kind: escalationHandler, code: "E1", scopeId: "sub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// when
			handler := resolver.Resolve(tt.kind, tt.code, tt.scopeId, definition)

			// then
			if tt.want == "" {
				assert.Nil(t, handler)
				return
			}
			require.NotNil(t, handler)
			assert.Equal(t, tt.want, handler.Id)
		})
	}
}

func TestErrorBoundaryEventCatchesErrorOfSubprocess(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "error-boundary.yaml")

	// when
	process := startProcess(t, bpmnEngine, "ErrorBoundaryProcess", nil)

	// then
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "outOfStock").State)
	assert.Equal(t, runtime.ActivityTerminated, activityOf(t, bpmnEngine, process.Id, "reserve").State)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "stockMissing").State)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "backorder").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
	_, err := engineStorage.FindActivityByDefinitionId(t.Context(), process.Id, "reserved")
	assert.Error(t, err, "the regular path after the subprocess is not taken")
}

func TestUncaughtErrorRaisesIncident(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "uncaught-error.yaml")

	// when
	process := startProcess(t, bpmnEngine, "UncaughtErrorProcess", nil)

	// then
	assert.Equal(t, runtime.ProcessIncident, processState(t, bpmnEngine, process.Id))
}

func TestNonInterruptingEscalationLetsThrowerContinue(t *testing.T) {
	// setup
	deployFile(t, bpmnEngine, "escalation.yaml")

	// when
	process := startProcess(t, bpmnEngine, "EscalationProcess", nil)

	// then
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "notify").State)
	assert.Equal(t, runtime.ActivityScheduled, activityOf(t, bpmnEngine, process.Id, "finish").State)
	assert.Equal(t, runtime.ActivityActive, activityOf(t, bpmnEngine, process.Id, "handle").State)

	// when
	notify := pollTask(t, bpmnEngine, "escalation-notify", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), notify.Id, nil))
	finish := pollTask(t, bpmnEngine, "escalation-finish", process.Id)
	require.NoError(t, bpmnEngine.CompleteExternalTask(t.Context(), finish.Id, nil))
	waitIdle(t, bpmnEngine)

	// then
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "handle").State)
	assert.Equal(t, runtime.ActivityCompleted, activityOf(t, bpmnEngine, process.Id, "notifyEnd").State)
	assert.Equal(t, runtime.ProcessCompleted, processState(t, bpmnEngine, process.Id))
}
