package storage

import (
	"context"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// Storage is the single source of truth of the engine.
//
// Methods that are expected to return exactly one match MUST return ErrNotFound when the result does not exist.
// Operations documented as atomic MUST stay atomic under concurrent callers, possibly from several engine instances.
type Storage interface {
	DefinitionStorage
	ProcessStorage
	ActivityStorage
	QueueStorage
	VariableStorage
	HistoryStorage
	JobStorage
	ShedlockStorage

	GenerateId() string
}

type Page struct {
	Offset int
	Limit  int
}

type DefinitionStorage interface {
	// SaveDefinitions assigns ids and versions. A definition whose key already exists gets
	// the next version unless its schema is unchanged, in which case the stored one is returned.
	SaveDefinitions(ctx context.Context, definitions []model.ProcessDefinition) ([]model.ProcessDefinition, error)

	FindDefinitionById(ctx context.Context, id string) (model.ProcessDefinition, error)

	FindLatestDefinitionByKey(ctx context.Context, key string) (model.ProcessDefinition, error)

	FindDefinitionByKeyAndVersion(ctx context.Context, key string, version int) (model.ProcessDefinition, error)

	// FindAllDefinitions returns definitions ordered by key and version.
	FindAllDefinitions(ctx context.Context, page Page) ([]model.ProcessDefinition, error)

	SetDefinitionSuspendedById(ctx context.Context, id string, suspended bool) error

	// SetDefinitionSuspendedByKey changes every version of key and returns the number of changed definitions.
	SetDefinitionSuspendedByKey(ctx context.Context, key string, suspended bool) (int, error)
}

type ProcessStorage interface {
	// SaveProcess inserts or overwrites the process.
	SaveProcess(ctx context.Context, process runtime.Process) error

	// UpdateProcessState moves the process into state and maintains UpdatedAt/CompletedAt.
	UpdateProcessState(ctx context.Context, id string, state runtime.ProcessState) (runtime.Process, error)

	FindProcessById(ctx context.Context, id string) (runtime.Process, error)

	// FindProcessExecutionById returns the process with its activities and variables.
	FindProcessExecutionById(ctx context.Context, id string) (runtime.ProcessExecution, error)

	FindProcessesByBusinessKey(ctx context.Context, businessKey string) ([]runtime.Process, error)

	// FindProcessesByVariables matches process scoped variables by equality of their serialised values.
	FindProcessesByVariables(ctx context.Context, variables map[string]any) ([]runtime.Process, error)

	FindProcessesByBusinessKeyAndVariables(ctx context.Context, businessKey string, variables map[string]any) ([]runtime.Process, error)

	// FindAllFullyCompleted returns terminal root processes whose whole call tree is terminal.
	FindAllFullyCompleted(ctx context.Context, limit int) ([]runtime.ProcessExecution, error)

	FindAllProcesses(ctx context.Context, page Page) ([]runtime.Process, error)

	// DeleteProcess removes the process with its activities and variables.
	DeleteProcess(ctx context.Context, id string) error
}

type ActivityStorage interface {
	// SaveActivity inserts or overwrites the activity execution.
	SaveActivity(ctx context.Context, activity runtime.ActivityExecution) error

	FindActivityById(ctx context.Context, id string) (runtime.ActivityExecution, error)

	// FindActivityByDefinitionId returns the newest execution of definitionId, preferring a non terminal one.
	FindActivityByDefinitionId(ctx context.Context, processId string, definitionId string) (runtime.ActivityExecution, error)

	FindActivitiesByIds(ctx context.Context, ids []string) ([]runtime.ActivityExecution, error)

	FindActivitiesByProcessId(ctx context.Context, processId string) ([]runtime.ActivityExecution, error)

	// FindActiveActivities returns SCHEDULED and ACTIVE executions, optionally restricted to definitionIds.
	FindActiveActivities(ctx context.Context, processId string, definitionIds ...string) ([]runtime.ActivityExecution, error)

	// FindTimedOut returns non terminal executions whose timeout is before now.
	FindTimedOut(ctx context.Context, now time.Time, limit int) ([]runtime.ActivityExecution, error)

	FindFailed(ctx context.Context, processId string) ([]runtime.ActivityExecution, error)

	IsAnyFailed(ctx context.Context, processId string) (bool, error)

	// IsAllCompleted reports that no execution (of definitionIds when given) is SCHEDULED, ACTIVE or FAILED.
	IsAllCompleted(ctx context.Context, processId string, definitionIds ...string) (bool, error)

	ChangeActivityState(ctx context.Context, id string, state runtime.ActivityState) error

	DeleteActivity(ctx context.Context, id string) error

	DeleteAllActive(ctx context.Context, processId string, definitionIds []string) error

	// JoinArrive atomically registers one arrival at a joining gateway and returns true exactly
	// once per expected arrivals. The counter restarts afterwards.
	JoinArrive(ctx context.Context, processId string, definitionId string, expected int) (bool, error)

	// Poll atomically claims up to limit SCHEDULED executions of topic and processDefinitionKey,
	// switching them to ACTIVE. No execution is returned to two callers.
	Poll(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]runtime.ActivityExecution, error)
}

type QueueItem struct {
	ActivityId           string
	Topic                string
	ProcessDefinitionKey string
	CreatedAt            time.Time
}

type QueueStorage interface {
	// PushQueue makes the item visible to every PollQueue call issued after it returns.
	PushQueue(ctx context.Context, item QueueItem) error

	// PollQueue atomically claims and removes up to limit items, oldest first.
	// Concurrent pollers receive disjoint results.
	PollQueue(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]string, error)

	RemoveFromQueue(ctx context.Context, activityId string) error
}

type VariableStorage interface {
	// SaveVariables upserts by (ProcessId, ExecutionId, Key) and returns the stored variables.
	SaveVariables(ctx context.Context, variables []runtime.Variable) ([]runtime.Variable, error)

	// FindVariablesInScope returns process scoped variables plus variables of executions whose
	// definition id is one of executionDefinitionIds.
	FindVariablesInScope(ctx context.Context, processId string, executionDefinitionIds []string) ([]runtime.Variable, error)

	FindVariablesInProcess(ctx context.Context, processId string) ([]runtime.Variable, error)
}

type HistoryStorage interface {
	// SaveHistory atomically archives the executions and removes their live rows.
	SaveHistory(ctx context.Context, executions []runtime.ProcessExecution) error

	FindHistory(ctx context.Context, processId string) (runtime.ProcessExecution, error)
}

type JobStorage interface {
	SaveJob(ctx context.Context, job runtime.Job) error

	FindJobById(ctx context.Context, id string) (runtime.Job, error)

	FindJobs(ctx context.Context, page Page) ([]runtime.Job, error)
}

type ShedlockStorage interface {
	// TryAcquireLock returns false when another owner holds an unexpired lock.
	TryAcquireLock(ctx context.Context, name string, until time.Time, owner string) (bool, error)

	ReleaseLock(ctx context.Context, name string) error
}
