package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedDefinition() ProcessDefinition {
	d := ProcessDefinition{
		Id:  "def-1",
		Key: "NestedProcess",
		Activities: []ActivityDefinition{
			{Id: "start", Type: ActivityTypeStartEvent, Outgoing: []string{"grandparent"}},
			{Id: "grandparent", Type: ActivityTypeSubprocess, Incoming: []string{"start"}, Outgoing: []string{"end"}},
			{Id: "gp-start", ParentId: "grandparent", Type: ActivityTypeStartEvent, Outgoing: []string{"parent"}},
			{Id: "parent", ParentId: "grandparent", Type: ActivityTypeSubprocess, Incoming: []string{"gp-start"}},
			{Id: "p-start", ParentId: "parent", Type: ActivityTypeStartEvent, Outgoing: []string{"child"}},
			{Id: "child", ParentId: "parent", Type: ActivityTypeReceiveTask, Incoming: []string{"p-start"}, Message: &MessageCapability{Reference: "go"}},
			{Id: "end", Type: ActivityTypeEndEvent, Incoming: []string{"grandparent"}},
		},
	}
	d.Index()
	return d
}

func TestScopeReturnsAncestorChain(t *testing.T) {
	// given
	d := nestedDefinition()

	// when
	scope, err := d.Scope("child")

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"child", "parent", "grandparent", "def-1"}, scope)
}

func TestScopeOfTopLevelActivity(t *testing.T) {
	d := nestedDefinition()

	scope, err := d.Scope("start")

	assert.NoError(t, err)
	assert.Equal(t, []string{"start", "def-1"}, scope)
}

func TestScopeUnknownActivityIsIllegalArgument(t *testing.T) {
	d := nestedDefinition()

	_, err := d.Scope("missing")

	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestValidateRejectsParentCycle(t *testing.T) {
	// given
	d := ProcessDefinition{
		Id:  "def-cycle",
		Key: "Cycle",
		Activities: []ActivityDefinition{
			{Id: "start", Type: ActivityTypeStartEvent},
			{Id: "a", ParentId: "b", Type: ActivityTypeSubprocess},
			{Id: "b", ParentId: "a", Type: ActivityTypeSubprocess},
		},
	}

	// when
	err := d.Validate()

	// then
	assert.ErrorIs(t, err, ErrIllegalArgument)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateRejectsUnknownReferences(t *testing.T) {
	d := ProcessDefinition{
		Key: "Broken",
		Activities: []ActivityDefinition{
			{Id: "start", Type: ActivityTypeStartEvent, Outgoing: []string{"nowhere"}},
		},
	}

	err := d.Validate()

	assert.ErrorIs(t, err, ErrIllegalArgument)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestValidateRejectsInvalidDuration(t *testing.T) {
	d := ProcessDefinition{
		Key: "Timer",
		Activities: []ActivityDefinition{
			{Id: "start", Type: ActivityTypeStartEvent, Outgoing: []string{"wait"}},
			{Id: "wait", Type: ActivityTypeIntermediateCatchEvent, Incoming: []string{"start"}, Timer: &TimerCapability{Duration: "soon"}},
		},
	}

	err := d.Validate()

	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestGetStartActivity(t *testing.T) {
	d := nestedDefinition()

	start, err := d.GetStartActivity()
	assert.NoError(t, err)
	assert.Equal(t, "start", start.Id)

	empty := ProcessDefinition{Key: "empty"}
	_, err = empty.GetStartActivity()
	assert.ErrorIs(t, err, ErrStartEventNotFound)
}

func TestIsAsyncInsideEventSubprocess(t *testing.T) {
	d := ProcessDefinition{
		Id:  "def-async",
		Key: "Async",
		Activities: []ActivityDefinition{
			{Id: "start", Type: ActivityTypeStartEvent},
			{Id: "events", Type: ActivityTypeEventSubprocess},
			{Id: "on-error", ParentId: "events", Type: ActivityTypeErrorStartEvent, Outgoing: []string{"handle"}},
			{Id: "handle", ParentId: "events", Type: ActivityTypeEndEvent, Incoming: []string{"on-error"}},
		},
	}
	require.NoError(t, d.Validate())

	assert.True(t, d.IsAsync("handle"))
	assert.True(t, d.IsAsync("on-error"))
	assert.False(t, d.IsAsync("events"))
	assert.False(t, d.IsAsync("start"))
}

func TestDescendantIdsAndReachability(t *testing.T) {
	d := nestedDefinition()

	assert.ElementsMatch(t, []string{"gp-start", "parent", "p-start", "child"}, d.DescendantIds("grandparent"))
	assert.True(t, d.CanReach("start", "end"))
	assert.False(t, d.CanReach("end", "start"))
}

func TestLoadFromBytes(t *testing.T) {
	data := []byte(`
key: LoadedProcess
name: Loaded
messages: [ping]
activities:
  - id: start
    type: START_EVENT
    outgoing: [task]
  - id: task
    type: EXTERNAL_TASK
    incoming: [start]
    outgoing: [end]
    external:
      topic: work
      retries: 2
      timeout: PT5M
  - id: end
    type: END_EVENT
    incoming: [task]
---
key: Second
activities:
  - id: start
    type: START_EVENT
`)

	definitions, err := LoadFromBytes(data)

	require.NoError(t, err)
	assert.Len(t, definitions, 2)
	assert.Equal(t, "LoadedProcess", definitions[0].Key)
	assert.Equal(t, "work", definitions[0].Activities[1].Topic())
	assert.Equal(t, 2, *definitions[0].Activities[1].External.Retries)
	assert.NotEmpty(t, definitions[0].Metadata.Schema)
	assert.NotEqual(t, definitions[0].Metadata.Schema, definitions[1].Metadata.Schema)
}
