package bpmn

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	bpmnotel "github.com/pbinitiative/zenorchestrator/pkg/otel"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DeployDefinitions validates and stores definitions. A definition identical to the
// latest version of its key is not stored again, the stored one is returned instead.
func (engine *Engine) DeployDefinitions(ctx context.Context, definitions []model.ProcessDefinition) (res []model.ProcessDefinition, err error) {
	ctx, span := engine.tracer.Start(ctx, "deploy-definitions")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	for i := range definitions {
		if err := definitions[i].Validate(); err != nil {
			return nil, errors.Join(newEngineErrorf("definition %s is not valid", definitions[i].Key), err)
		}
	}
	res, err = engine.persistence.SaveDefinitions(ctx, definitions)
	if err != nil {
		return nil, fmt.Errorf("failed to save process definitions: %w", err)
	}
	for _, d := range res {
		span.AddEvent("deployed", trace.WithAttributes(attribute.String(bpmnotel.AttributeProcessDefinitionKey, d.Key), attribute.Int("version", d.Version)))
		engine.logger.Info("process definition deployed", "key", d.Key, "version", d.Version, "id", d.Id)
	}
	return res, nil
}

// DeployYaml loads and deploys every definition of a YAML document.
func (engine *Engine) DeployYaml(ctx context.Context, data []byte, deployment string) ([]model.ProcessDefinition, error) {
	definitions, err := model.LoadFromBytes(data)
	if err != nil {
		return nil, err
	}
	for i := range definitions {
		if definitions[i].Metadata.Deployment == "" {
			definitions[i].Metadata.Deployment = deployment
		}
	}
	return engine.DeployDefinitions(ctx, definitions)
}

func (engine *Engine) GetDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	return engine.loadDefinition(ctx, id)
}

func (engine *Engine) FindDefinitions(ctx context.Context, page storage.Page) ([]model.ProcessDefinition, error) {
	return engine.persistence.FindAllDefinitions(ctx, page)
}

// SuspendDefinition rejects new starts of the definition id or, when id is empty, of every version of key.
func (engine *Engine) SuspendDefinition(ctx context.Context, id string, key string) error {
	return engine.dispatch(ctx, SuspendDefinitionCommand{Id: id, Key: key, Suspended: true})
}

func (engine *Engine) ResumeDefinition(ctx context.Context, id string, key string) error {
	return engine.dispatch(ctx, SuspendDefinitionCommand{Id: id, Key: key, Suspended: false})
}

// StartProcessByKey starts the latest version of the definition key.
func (engine *Engine) StartProcessByKey(ctx context.Context, key string, businessKey string, variables map[string]any) (*runtime.Process, error) {
	return Execute[*runtime.Process](ctx, engine.dispatcher, StartProcessCommand{Key: key, BusinessKey: businessKey, Variables: variables})
}

func (engine *Engine) StartProcessByKeyAndVersion(ctx context.Context, key string, version int, businessKey string, variables map[string]any) (*runtime.Process, error) {
	return Execute[*runtime.Process](ctx, engine.dispatcher, StartProcessCommand{Key: key, Version: &version, BusinessKey: businessKey, Variables: variables})
}

func (engine *Engine) StartProcessByDefinitionId(ctx context.Context, definitionId string, businessKey string, variables map[string]any) (*runtime.Process, error) {
	return Execute[*runtime.Process](ctx, engine.dispatcher, StartProcessCommand{DefinitionId: definitionId, BusinessKey: businessKey, Variables: variables})
}

// GetProcess returns the process with its activities and variables. Compacted processes are read from history.
func (engine *Engine) GetProcess(ctx context.Context, id string) (runtime.ProcessExecution, error) {
	execution, err := engine.persistence.FindProcessExecutionById(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		execution, err = engine.persistence.FindHistory(ctx, id)
	}
	if err != nil {
		return runtime.ProcessExecution{}, notFound(err, ErrProcessNotFound, "failed to find process %s", id)
	}
	return execution, nil
}

func (engine *Engine) FindProcesses(ctx context.Context, page storage.Page) ([]runtime.Process, error) {
	return engine.persistence.FindAllProcesses(ctx, page)
}

func (engine *Engine) TerminateProcess(ctx context.Context, id string) error {
	return engine.dispatch(ctx, TerminateProcessCommand{ProcessId: id})
}

func (engine *Engine) CancelProcess(ctx context.Context, id string) error {
	return engine.dispatch(ctx, CancelProcessCommand{ProcessId: id})
}

func (engine *Engine) DeleteProcess(ctx context.Context, id string) error {
	return engine.dispatch(ctx, DeleteProcessCommand{ProcessId: id})
}

// CorrelateMessage delivers message to the process matching businessKey and correlationKeys.
func (engine *Engine) CorrelateMessage(ctx context.Context, message string, businessKey string, correlationKeys map[string]any, variables map[string]any) (*runtime.Process, error) {
	return Execute[*runtime.Process](ctx, engine.dispatcher, CorrelateMessageCommand{
		Message:         message,
		BusinessKey:     businessKey,
		CorrelationKeys: correlationKeys,
		Variables:       variables,
	})
}

func (engine *Engine) CompleteActivity(ctx context.Context, id string, variables map[string]any) error {
	return engine.dispatch(ctx, CompleteActivityCommand{Ref: RefById(id), Variables: variables})
}

func (engine *Engine) FailActivity(ctx context.Context, id string, failure *runtime.ActivityFailure, variables map[string]any) error {
	return engine.dispatch(ctx, FailActivityCommand{Ref: RefById(id), Failure: failure, Variables: variables})
}

func (engine *Engine) RetryActivity(ctx context.Context, id string) error {
	return engine.dispatch(ctx, RetryActivityCommand{Ref: RefById(id)})
}

func (engine *Engine) TerminateActivity(ctx context.Context, id string, withoutInterruption bool) error {
	return engine.dispatch(ctx, TerminateActivityCommand{Ref: RefById(id), WithoutInterruption: withoutInterruption})
}

// SetVariables merges variables into process scope.
func (engine *Engine) SetVariables(ctx context.Context, processId string, variables map[string]any) error {
	return engine.dispatch(ctx, SetVariablesCommand{ProcessId: processId, Variables: variables})
}

// SetActivityVariablesById stores variables on the activity with local, otherwise in its enclosing scopes.
func (engine *Engine) SetActivityVariablesById(ctx context.Context, activityId string, variables map[string]any, local bool) error {
	return engine.dispatch(ctx, SetVariablesCommand{ActivityId: activityId, Variables: variables, Local: local})
}

// PollExternalTasks claims up to limit tasks of topic. processDefinitionKey narrows the claim when not empty.
func (engine *Engine) PollExternalTasks(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]ExternalTask, error) {
	return Execute[[]ExternalTask](ctx, engine.dispatcher, PollExternalTasksCommand{Topic: topic, ProcessDefinitionKey: processDefinitionKey, Limit: limit})
}

func (engine *Engine) CompleteExternalTask(ctx context.Context, id string, variables map[string]any) error {
	if err := engine.checkExternalTask(ctx, id); err != nil {
		return err
	}
	return engine.CompleteActivity(ctx, id, variables)
}

// FailExternalTask reports a worker failure. The task is retried while it has retries left.
func (engine *Engine) FailExternalTask(ctx context.Context, id string, failure *runtime.ActivityFailure, variables map[string]any) error {
	if err := engine.checkExternalTask(ctx, id); err != nil {
		return err
	}
	return engine.FailActivity(ctx, id, failure, variables)
}

func (engine *Engine) checkExternalTask(ctx context.Context, id string) error {
	activity, err := engine.persistence.FindActivityById(ctx, id)
	if err != nil {
		return notFound(err, ErrActivityNotFound, "failed to find external task %s", id)
	}
	if activity.Topic == "" {
		return fmt.Errorf("%w: activity %s is not an external task", ErrIllegalArgument, id)
	}
	return nil
}

// CompactHistory moves up to limit fully completed process trees into history.
func (engine *Engine) CompactHistory(ctx context.Context, limit int) (runtime.Job, error) {
	return Execute[runtime.Job](ctx, engine.dispatcher, CompactHistoryCommand{Limit: limit})
}

// RunJob runs an administrative job right away and returns its record.
func (engine *Engine) RunJob(ctx context.Context, jobType string) (runtime.Job, error) {
	switch jobType {
	case JobTypeCompaction:
		return engine.CompactHistory(ctx, engine.config.CompactionBatch)
	case JobTypeTimeoutScan:
		input := map[string]any{"limit": engine.config.TimeoutScanBatch}
		return engine.recordJob(ctx, JobTypeTimeoutScan, input, func(ctx context.Context) (map[string]any, error) {
			return nil, engine.dispatch(ctx, FailTimedOutActivitiesCommand{Limit: engine.config.TimeoutScanBatch})
		})
	}
	return runtime.Job{}, fmt.Errorf("%w: unknown job type %q", ErrIllegalArgument, jobType)
}

func (engine *Engine) GetJob(ctx context.Context, id string) (runtime.Job, error) {
	return engine.persistence.FindJobById(ctx, id)
}

func (engine *Engine) FindJobs(ctx context.Context, page storage.Page) ([]runtime.Job, error) {
	return engine.persistence.FindJobs(ctx, page)
}
