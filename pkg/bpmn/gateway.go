package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// selectPaths evaluates the conditions of a splitting gateway in their declared order.
// With firstOnly the first satisfied condition wins. The default flow (a condition
// without expression) is taken when nothing else matched.
func (engine *Engine) selectPaths(ctx context.Context, activity *runtime.ActivityExecution, firstOnly bool) ([]*model.ActivityDefinition, error) {
	definition := activity.Process.Definition
	conditions := activity.Definition.Conditions
	if len(conditions) == 0 {
		next := definition.NextActivities(activity.DefinitionId)
		if len(next) == 0 {
			return nil, fmt.Errorf("%w: gateway %s has no outgoing activities", ErrNoValidPath, activity.DefinitionId)
		}
		return next, nil
	}
	variables, err := engine.ScopedVariables(ctx, activity)
	if err != nil {
		return nil, err
	}
	var defaultTargets []string
	targets := make([]string, 0)
	for _, condition := range conditions {
		if condition.Expression == "" {
			if defaultTargets == nil {
				defaultTargets = condition.Targets
			}
			continue
		}
		satisfied, err := engine.evaluateCondition(condition.Expression, variables)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			continue
		}
		targets = append(targets, condition.Targets...)
		if firstOnly {
			break
		}
	}
	if len(targets) == 0 {
		targets = defaultTargets
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no condition of gateway %s is satisfied", ErrNoValidPath, activity.DefinitionId)
	}
	return definition.ActivitiesByIds(targets), nil
}

type exclusiveGatewayBehavior struct {
	*defaultBehavior
}

func (b *exclusiveGatewayBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	next, err := b.engine.selectPaths(ctx, activity, true)
	if err != nil {
		return nil, err
	}
	if err := b.engine.completeActivity(ctx, activity, variables); err != nil {
		return nil, err
	}
	return &Completion{Next: next}, nil
}

// inclusiveGatewayBehavior splits into every satisfied path and joins the paths that are still running.
type inclusiveGatewayBehavior struct {
	*defaultBehavior
}

func (b *inclusiveGatewayBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	if len(activity.Definition.Incoming) <= 1 {
		return b.defaultBehavior.Run(ctx, activity)
	}
	return b.join(ctx, activity)
}

func (b *inclusiveGatewayBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	next, err := b.engine.selectPaths(ctx, activity, false)
	if err != nil {
		return nil, err
	}
	if err := b.engine.completeActivity(ctx, activity, variables); err != nil {
		return nil, err
	}
	return &Completion{Next: next}, nil
}

// join lets the first arrival wait and merges later arrivals into it by deleting them. The waiting
// execution fires once no other running activity can still reach the gateway.
// Arrivals are serialised by a lock per process and gateway.
func (b *inclusiveGatewayBehavior) join(ctx context.Context, activity *runtime.ActivityExecution) error {
	unlock, err := b.engine.lock(ctx, fmt.Sprintf("join:%s:%s", activity.ProcessId, activity.DefinitionId), activity.Id)
	if err != nil {
		return err
	}
	defer unlock()

	executions, err := b.engine.persistence.FindActiveActivities(ctx, activity.ProcessId, activity.DefinitionId)
	if err != nil {
		return err
	}
	var waiting *runtime.ActivityExecution
	for i := range executions {
		if executions[i].Id != activity.Id && executions[i].StartedAt != nil {
			waiting = &executions[i]
			break
		}
	}
	if waiting != nil {
		if err := b.engine.dispatch(ctx, DeleteActivityCommand{Ref: RefOf(activity)}); err != nil {
			return err
		}
	} else {
		if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
			return err
		}
		waiting = activity
	}

	reachable, err := b.engine.canStillBeReached(ctx, activity)
	if err != nil {
		return err
	}
	if !reachable {
		b.engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(waiting.Id)})
	}
	return nil
}

// canStillBeReached reports whether a running activity of the process has a path to the definition of activity.
// Executions of the gateway itself that were created but did not run yet are arrivals on their way.
func (engine *Engine) canStillBeReached(ctx context.Context, activity *runtime.ActivityExecution) (bool, error) {
	active, err := engine.persistence.FindActiveActivities(ctx, activity.ProcessId)
	if err != nil {
		return false, err
	}
	definition := activity.Process.Definition
	for _, a := range active {
		if a.DefinitionId == activity.DefinitionId {
			if a.Id != activity.Id && a.StartedAt == nil {
				return true, nil
			}
			continue
		}
		if definition.CanReach(a.DefinitionId, activity.DefinitionId) {
			return true, nil
		}
	}
	return false, nil
}

// parallelGatewayBehavior forks into every outgoing activity and joins when all incoming arrived.
type parallelGatewayBehavior struct {
	*defaultBehavior
}

func (b *parallelGatewayBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	incoming := len(activity.Definition.Incoming)
	if incoming <= 1 {
		return b.defaultBehavior.Run(ctx, activity)
	}
	last, err := b.engine.persistence.JoinArrive(ctx, activity.ProcessId, activity.DefinitionId, incoming)
	if err != nil {
		return fmt.Errorf("failed to join at gateway %s: %w", activity.DefinitionId, err)
	}
	if !last {
		// the last arrival carries the flow on, earlier ones leave no execution behind
		return b.engine.dispatch(ctx, DeleteActivityCommand{Ref: RefOf(activity)})
	}
	return b.defaultBehavior.Run(ctx, activity)
}

// eventBasedGatewayBehavior starts every following catch event. The first one to
// complete closes the gateway, see closeEventGateway.
type eventBasedGatewayBehavior struct {
	*defaultBehavior
}

func (b *eventBasedGatewayBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	return b.engine.runNext(ctx, activity.Process, b.next(activity))
}

func (b *eventBasedGatewayBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if err := b.engine.completeActivity(ctx, activity, variables); err != nil {
		return nil, err
	}
	return nil, nil
}

// lock spins until the shedlock name is held by owner. The returned function releases it.
func (engine *Engine) lock(ctx context.Context, name string, owner string) (func(), error) {
	for {
		acquired, err := engine.persistence.TryAcquireLock(ctx, name, time.Now().Add(engine.config.LockDuration), owner)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if acquired {
			return func() {
				if err := engine.persistence.ReleaseLock(context.WithoutCancel(ctx), name); err != nil {
					engine.logger.Error("failed to release lock", "lock", name, "err", err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}
