package bpmn

import (
	"context"
	"errors"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

type handlerKind int

const (
	errorHandler handlerKind = iota
	escalationHandler
)

func (k handlerKind) String() string {
	if k == escalationHandler {
		return "escalation"
	}
	return "error"
}

func (k handlerKind) boundaryType() model.ActivityType {
	if k == escalationHandler {
		return model.ActivityTypeEscalationBoundaryEvent
	}
	return model.ActivityTypeErrorBoundaryEvent
}

func (k handlerKind) startType() model.ActivityType {
	if k == escalationHandler {
		return model.ActivityTypeEscalationStartEvent
	}
	return model.ActivityTypeErrorStartEvent
}

func (k handlerKind) code(definition *model.ActivityDefinition) string {
	if k == escalationHandler {
		return definition.EscalationCode()
	}
	return definition.ErrorCode()
}

// HandlerResolver finds the activity catching an error or an escalation raised in a scope.
type HandlerResolver struct{}

// Resolve looks for a boundary event attached to scopeId and then for the start event of an
// event subprocess placed directly in scopeId. Handlers with the exact code are preferred over
// catch-all handlers. When scopeId is the process definition itself only start events qualify.
func (r *HandlerResolver) Resolve(kind handlerKind, code string, scopeId string, definition *model.ProcessDefinition) *model.ActivityDefinition {
	processLevel := scopeId == definition.Id
	eventSubprocessParent := scopeId
	if processLevel {
		eventSubprocessParent = ""
	}
	matches := func(a *model.ActivityDefinition, exact bool) bool {
		if exact {
			return code != "" && kind.code(a) == code
		}
		return kind.code(a) == ""
	}
	for _, exact := range []bool{true, false} {
		if !processLevel {
			for i := range definition.Activities {
				a := &definition.Activities[i]
				if a.Type == kind.boundaryType() && a.AttachedToRef() == scopeId && matches(a, exact) {
					return a
				}
			}
		}
		for _, eventSubprocess := range definition.ChildActivities(eventSubprocessParent) {
			if eventSubprocess.Type != model.ActivityTypeEventSubprocess {
				continue
			}
			for _, start := range definition.ChildActivities(eventSubprocess.Id) {
				if start.Type == kind.startType() && matches(start, exact) {
					return start
				}
			}
		}
	}
	return nil
}

// eventHandler is a resolved handler together with the process it has to run in.
type eventHandler struct {
	definition *model.ActivityDefinition
	process    *runtime.Process
}

func (h *eventHandler) interrupting() bool {
	if h.definition.Type.IsBoundaryEvent() {
		return h.definition.CancelActivity() || h.definition.Type == model.ActivityTypeErrorBoundaryEvent
	}
	return isInterrupting(h.definition)
}

// walkHandlers resolves the handler of kind and code for source. Scopes are searched from
// the innermost one outwards, continuing through the call activities of parent processes.
// passed is called for every scope left without a handler. It receives the process the
// scope belongs to and is called once per child process with an empty scopeId after all
// its scopes were passed.
func (engine *Engine) walkHandlers(ctx context.Context, kind handlerKind, code string, source *runtime.ActivityExecution, passed func(process *runtime.Process, scopeId string) error) (*eventHandler, *runtime.Process, error) {
	current := source
	for {
		process := current.Process
		scope, err := current.Scope()
		if err != nil {
			return nil, nil, err
		}
		for _, scopeId := range scope {
			if handler := engine.resolver.Resolve(kind, code, scopeId, process.Definition); handler != nil {
				return &eventHandler{definition: handler, process: process}, process, nil
			}
			if passed != nil {
				if err := passed(process, scopeId); err != nil {
					return nil, nil, err
				}
			}
		}
		if process.IsRootProcess() {
			return nil, process, nil
		}
		if passed != nil {
			if err := passed(process, ""); err != nil {
				return nil, nil, err
			}
		}
		// the call activity execution shares its id with the child process
		current, err = engine.loadActivity(ctx, RefById(process.Id))
		if err != nil {
			return nil, nil, err
		}
	}
}

// handleCorrelateError triggers the handler of an error. Subprocesses left without a handler
// are terminated, child processes of call activities too. An uncaught error puts the root
// process into incident.
func (engine *Engine) handleCorrelateError(ctx context.Context, cmd CorrelateErrorCommand) error {
	source, err := engine.loadActivity(ctx, RefOf(cmd.Activity))
	if err != nil {
		return err
	}
	passed := func(process *runtime.Process, scopeId string) error {
		if scopeId == "" {
			return engine.dispatch(ctx, TerminateProcessCommand{ProcessId: process.Id})
		}
		scopeDefinition, ok := process.Definition.GetActivityById(scopeId)
		if !ok || scopeId == source.DefinitionId || !scopeDefinition.Type.IsSubprocess() {
			return nil
		}
		err := engine.dispatch(ctx, TerminateActivityCommand{Ref: RefByDefinition(process.Id, scopeId)})
		if errors.Is(err, ErrActivityNotFound) {
			return nil
		}
		return err
	}
	handler, root, err := engine.walkHandlers(ctx, errorHandler, cmd.ErrorCode, source, passed)
	if err != nil {
		return err
	}
	if handler == nil {
		engine.logger.Info("error not caught", "errorCode", cmd.ErrorCode, "activity", source.DefinitionId, "process", source.ProcessId)
		return engine.dispatch(ctx, IncidentProcessCommand{ProcessId: root.Id})
	}
	engine.logger.Debug("error caught", "errorCode", cmd.ErrorCode, "handler", handler.definition.Id, "process", handler.process.Id)
	engine.dispatchAsync(ctx, TriggerActivityCommand{Definition: handler.definition, Process: handler.process})
	return nil
}

// resolveEscalation returns the handler of the escalation thrown by activity, nil when nobody catches it.
func (engine *Engine) resolveEscalation(ctx context.Context, activity *runtime.ActivityExecution) (*eventHandler, error) {
	handler, _, err := engine.walkHandlers(ctx, escalationHandler, activity.Definition.EscalationCode(), activity, nil)
	return handler, err
}
