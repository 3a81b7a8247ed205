package bpmn

import (
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// ActivityRef points to one activity execution: directly, by id, or by (ProcessId, DefinitionId).
type ActivityRef struct {
	Activity     *runtime.ActivityExecution
	ActivityId   string
	ProcessId    string
	DefinitionId string
}

func RefOf(activity *runtime.ActivityExecution) ActivityRef {
	return ActivityRef{Activity: activity}
}

func RefById(activityId string) ActivityRef {
	return ActivityRef{ActivityId: activityId}
}

func RefByDefinition(processId string, definitionId string) ActivityRef {
	return ActivityRef{ProcessId: processId, DefinitionId: definitionId}
}

// ---------------------------------------------------------------------
// activity lifecycle

// RunActivityCommand runs an existing execution (Ref) or a new execution of Definition in Process.
// DefinitionId with ProcessId can be used instead of the pointers.
type RunActivityCommand struct {
	Ref          ActivityRef
	Definition   *model.ActivityDefinition
	Process      *runtime.Process
	DefinitionId string
	ProcessId    string
}

type CompleteActivityCommand struct {
	Ref       ActivityRef
	Variables map[string]any
}

type FailActivityCommand struct {
	Ref       ActivityRef
	Variables map[string]any
	Failure   *runtime.ActivityFailure
}

// FailTimedOutActivitiesCommand fails executions past their timeout with reason "Timeout".
// Due timer events are fired instead.
type FailTimedOutActivitiesCommand struct {
	Limit int
}

type RetryActivityCommand struct {
	Ref ActivityRef
}

type RetryActivitiesCommand struct {
	Activities []runtime.ActivityExecution
}

type CancelActivityCommand struct {
	Ref ActivityRef
}

type CancelActivitiesCommand struct {
	Activities []runtime.ActivityExecution
}

type TerminateActivityCommand struct {
	Ref                 ActivityRef
	WithoutInterruption bool
}

type TerminateActivitiesCommand struct {
	Activities          []runtime.ActivityExecution
	WithoutInterruption bool
}

// TerminateAllActivitiesCommand terminates every active execution of the process,
// restricted to DefinitionIds when given.
type TerminateAllActivitiesCommand struct {
	ProcessId     string
	DefinitionIds []string
}

type CancelAllActivitiesCommand struct {
	ProcessId string
}

type TriggerActivityCommand struct {
	Definition *model.ActivityDefinition
	Process    *runtime.Process
}

type DeleteActivityCommand struct {
	Ref ActivityRef
}

// HandleActivityCompletionCommand propagates a completed activity to Next, its parent or its process.
type HandleActivityCompletionCommand struct {
	Activity *runtime.ActivityExecution
	Next     []*model.ActivityDefinition
}

// ---------------------------------------------------------------------
// process lifecycle

// StartProcessCommand resolves the definition by DefinitionId, by Key and Version or by the latest Key.
// ProcessId, ParentId and RootProcessId are set when a call activity starts a child process.
type StartProcessCommand struct {
	Key             string
	Version         *int
	DefinitionId    string
	BusinessKey     string
	Variables       map[string]any
	ProcessId       string
	ParentId        string
	RootProcessId   string
	StartActivityId string
}

type RunProcessCommand struct {
	Process         *runtime.Process
	StartActivityId string
}

type CompleteProcessCommand struct {
	ProcessId string
}

type IncidentProcessCommand struct {
	ProcessId string
}

type ResolveProcessIncidentCommand struct {
	ProcessId string
}

type TerminateProcessCommand struct {
	ProcessId string
}

type CancelProcessCommand struct {
	ProcessId string
}

type DeleteProcessCommand struct {
	ProcessId string
}

// SuspendDefinitionCommand changes the suspended flag by definition Id or, when Id is empty, for every version of Key.
type SuspendDefinitionCommand struct {
	Id        string
	Key       string
	Suspended bool
}

// ---------------------------------------------------------------------
// correlation

type CorrelateMessageCommand struct {
	Message         string
	BusinessKey     string
	CorrelationKeys map[string]any
	Variables       map[string]any
}

type CorrelateErrorCommand struct {
	Activity  *runtime.ActivityExecution
	ErrorCode string
}

type CorrelateConditionsCommand struct {
	ProcessId string
}

// ---------------------------------------------------------------------
// variables and external tasks

// SetVariablesCommand stores Variables in process scope or, with Local, on the activity ActivityId.
type SetVariablesCommand struct {
	ProcessId  string
	ActivityId string
	Variables  map[string]any
	Local      bool
}

type PollExternalTasksCommand struct {
	Topic                string
	ProcessDefinitionKey string
	Limit                int
}

// ---------------------------------------------------------------------
// admin jobs

type CompactHistoryCommand struct {
	Limit int
}
