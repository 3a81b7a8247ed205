package runtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
)

// ActivityState of a single ActivityExecution:
//
//	            ┌─────────┐
//	            │SCHEDULED│ (queued for an external worker)
//	            └────┬────┘
//	                 v
//	            ┌──────┐
//	  Run ----->│ACTIVE│
//	            └──┬───┘
//	   ┌───────────┼─────────────┬─────────────┐
//	   v           v             v             v
//	COMPLETED    FAILED      TERMINATED     CANCELED
//
// FAILED activities can be retried, which puts them back to SCHEDULED or ACTIVE.
type ActivityState string

const (
	ActivityScheduled  ActivityState = "SCHEDULED"
	ActivityActive     ActivityState = "ACTIVE"
	ActivityCompleted  ActivityState = "COMPLETED"
	ActivityFailed     ActivityState = "FAILED"
	ActivityTerminated ActivityState = "TERMINATED"
	ActivityCanceled   ActivityState = "CANCELED"
)

func (s ActivityState) IsTerminal() bool {
	switch s {
	case ActivityCompleted, ActivityFailed, ActivityTerminated, ActivityCanceled:
		return true
	}
	return false
}

type ProcessState string

const (
	ProcessActive     ProcessState = "ACTIVE"
	ProcessIncident   ProcessState = "INCIDENT"
	ProcessCompleted  ProcessState = "COMPLETED"
	ProcessTerminated ProcessState = "TERMINATED"
	ProcessCanceled   ProcessState = "CANCELED"
	ProcessDeleted    ProcessState = "DELETED"
)

func (s ProcessState) IsTerminal() bool {
	switch s {
	case ProcessCompleted, ProcessTerminated, ProcessCanceled, ProcessDeleted:
		return true
	}
	return false
}

type Process struct {
	Id            string                   `json:"id"`
	RootProcessId string                   `json:"rootProcessId"`
	ParentId      string                   `json:"parentId,omitempty"`
	BusinessKey   string                   `json:"businessKey,omitempty"`
	State         ProcessState             `json:"state"`
	DefinitionId  string                   `json:"definitionId"`
	Definition    *model.ProcessDefinition `json:"-"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
	StartedAt     time.Time                `json:"startedAt"`
	CompletedAt   *time.Time               `json:"completedAt,omitempty"`
}

func (p *Process) IsInTerminalState() bool {
	return p.State.IsTerminal()
}

// IsCallActivity reports whether the process was started by a call activity of another process.
func (p *Process) IsCallActivity() bool {
	return p.ParentId != ""
}

func (p *Process) IsRootProcess() bool {
	return p.ParentId == ""
}

type ActivityFailure struct {
	Reason string `json:"reason"`
	Trace  string `json:"trace,omitempty"`
}

func FailureOf(reason string) *ActivityFailure {
	return &ActivityFailure{Reason: reason}
}

type ActivityExecution struct {
	Id            string                    `json:"id"`
	DefinitionId  string                    `json:"definitionId"`
	ProcessId     string                    `json:"processId"`
	Topic         string                    `json:"topic,omitempty"`
	DefinitionKey string                    `json:"definitionKey,omitempty"`
	Type          model.ActivityType        `json:"type"`
	State         ActivityState             `json:"state"`
	Variables     map[string]any            `json:"variables,omitempty"`
	Retries       int                       `json:"retries"`
	Async         bool                      `json:"async"`
	Timeout       *time.Time                `json:"timeout,omitempty"`
	Failure       *ActivityFailure          `json:"failure,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	StartedAt     *time.Time                `json:"startedAt,omitempty"`
	CompletedAt   *time.Time                `json:"completedAt,omitempty"`
	Process       *Process                  `json:"-"`
	Definition    *model.ActivityDefinition `json:"-"`
}

func (a *ActivityExecution) IsInTerminalState() bool {
	return a.State.IsTerminal()
}

func (a *ActivityExecution) IsAsync() bool {
	return a.Async
}

func (a *ActivityExecution) HasParent() bool {
	return a.Definition != nil && a.Definition.ParentId != ""
}

func (a *ActivityExecution) ParentDefinitionId() string {
	if a.Definition == nil {
		return ""
	}
	return a.Definition.ParentId
}

func (a *ActivityExecution) Inputs() map[string]any {
	if a.Definition == nil {
		return nil
	}
	return a.Definition.Inputs
}

func (a *ActivityExecution) Outputs() map[string]any {
	if a.Definition == nil {
		return nil
	}
	return a.Definition.Outputs
}

// Scope returns the ancestor chain of the execution's definition.
func (a *ActivityExecution) Scope() ([]string, error) {
	if a.Process == nil || a.Process.Definition == nil {
		return nil, fmt.Errorf("%w: activity %s has no process definition attached", model.ErrIllegalArgument, a.Id)
	}
	return a.Process.Definition.Scope(a.DefinitionId)
}

// Variable is a scoped key/value. An empty ExecutionId means process scope.
type Variable struct {
	Id                    string    `json:"id"`
	ProcessId             string    `json:"processId"`
	ExecutionId           string    `json:"executionId,omitempty"`
	ExecutionDefinitionId string    `json:"executionDefinitionId,omitempty"`
	Key                   string    `json:"key"`
	Value                 string    `json:"value"`
	Type                  string    `json:"type"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// NewVariable serialises value as JSON and tags it with its JSON type.
func NewVariable(key string, value any) (Variable, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Variable{}, fmt.Errorf("failed to serialise variable %s: %w", key, err)
	}
	return Variable{
		Key:   key,
		Value: string(data),
		Type:  typeOf(value),
	}, nil
}

func (v Variable) GetValue() (any, error) {
	var res any
	if v.Value == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(v.Value), &res); err != nil {
		return nil, fmt.Errorf("failed to deserialise variable %s: %w", v.Key, err)
	}
	return res, nil
}

func typeOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return "number"
	case []any:
		return "array"
	default:
		return "object"
	}
}

// ProcessExecution is a process together with everything that ran inside it.
// It is the unit that compaction moves into history.
type ProcessExecution struct {
	Process    Process             `json:"process"`
	Activities []ActivityExecution `json:"activities"`
	Variables  []Variable          `json:"variables"`
}

type JobState string

const (
	JobCreated   JobState = "CREATED"
	JobRunning   JobState = "RUNNING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// Job records a run of an administrative action such as compaction.
type Job struct {
	Id          string         `json:"id"`
	Type        string         `json:"type"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	State       JobState       `json:"state"`
	Failure     string         `json:"failure,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}
