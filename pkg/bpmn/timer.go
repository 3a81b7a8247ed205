// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

func timerBoundaryEvents(definition *model.ProcessDefinition, attachedTo string) []*model.ActivityDefinition {
	res := make([]*model.ActivityDefinition, 0)
	for i := range definition.Activities {
		a := &definition.Activities[i]
		if a.Type == model.ActivityTypeTimerBoundaryEvent && a.AttachedToRef() == attachedTo {
			res = append(res, a)
		}
	}
	return res
}

func dueAt(timer *model.TimerCapability, now time.Time) (time.Time, error) {
	if timer == nil {
		return time.Time{}, fmt.Errorf("%w: timer is missing", ErrIllegalArgument)
	}
	d, err := model.ParseDuration(timer.Duration)
	if err != nil {
		return time.Time{}, err
	}
	return d.Shift(now), nil
}

// armBoundaryTimers creates a waiting execution with a timeout for every timer boundary event of activity.
func (engine *Engine) armBoundaryTimers(ctx context.Context, activity *runtime.ActivityExecution) error {
	if activity.Type.IsBoundaryEvent() {
		return nil
	}
	now := time.Now()
	for _, boundary := range timerBoundaryEvents(activity.Process.Definition, activity.DefinitionId) {
		due, err := dueAt(boundary.Timer, now)
		if err != nil {
			return err
		}
		timer := engine.newActivity(activity.Process, boundary)
		timer.Timeout = &due
		if err := engine.changeState(ctx, timer, runtime.ActivityActive); err != nil {
			return err
		}
		engine.logger.Debug("timer armed", "boundary", boundary.Id, "attachedTo", activity.DefinitionId, "due", due)
	}
	return nil
}

// disarmBoundaryTimers removes timers armed for activity that did not fire.
func (engine *Engine) disarmBoundaryTimers(ctx context.Context, activity *runtime.ActivityExecution) error {
	boundaries := timerBoundaryEvents(activity.Process.Definition, activity.DefinitionId)
	if len(boundaries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(boundaries))
	for _, b := range boundaries {
		ids = append(ids, b.Id)
	}
	armed, err := engine.persistence.FindActiveActivities(ctx, activity.ProcessId, ids...)
	if err != nil {
		return err
	}
	for _, timer := range armed {
		if timer.Timeout == nil {
			continue
		}
		if err := engine.persistence.DeleteActivity(ctx, timer.Id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

func isTimer(activity *runtime.ActivityExecution) bool {
	switch activity.Type {
	case model.ActivityTypeTimerBoundaryEvent:
		return true
	case model.ActivityTypeIntermediateCatchEvent:
		return activity.Definition.Timer != nil
	}
	return false
}

// handleFailTimedOutActivities fires due timers and fails every other execution past its timeout.
func (engine *Engine) handleFailTimedOutActivities(ctx context.Context, cmd FailTimedOutActivitiesCommand) error {
	timedOut, err := engine.persistence.FindTimedOut(ctx, time.Now(), cmd.Limit)
	if err != nil {
		return fmt.Errorf("failed to find timed out activities: %w", err)
	}
	var errJoin error
	for _, a := range timedOut {
		activity, err := engine.hydrate(ctx, a, nil)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		if !isTimer(activity) {
			errJoin = errors.Join(errJoin, engine.dispatch(ctx, FailActivityCommand{Ref: RefOf(activity), Failure: runtime.FailureOf("Timeout")}))
			continue
		}
		// a fired timer has no timeout so it is neither picked up again nor disarmed
		activity.Timeout = nil
		if err := engine.saveActivity(ctx, activity); err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		engine.logger.Debug("timer fired", "activity", activity.DefinitionId, "process", activity.ProcessId)
		engine.dispatchAsync(ctx, TriggerActivityCommand{Definition: activity.Definition, Process: activity.Process})
	}
	return errJoin
}
