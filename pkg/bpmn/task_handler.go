// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

// defaultBehavior completes right after it ran and continues with the outgoing activities.
type defaultBehavior struct {
	engine *Engine
}

func (b *defaultBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	b.engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(activity.Id)})
	return nil
}

func (b *defaultBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if err := b.engine.completeActivity(ctx, activity, variables); err != nil {
		return nil, err
	}
	return &Completion{Next: b.next(activity)}, nil
}

func (b *defaultBehavior) next(activity *runtime.ActivityExecution) []*model.ActivityDefinition {
	return activity.Process.Definition.NextActivities(activity.DefinitionId)
}

func (b *defaultBehavior) Cancel(ctx context.Context, activity *runtime.ActivityExecution) error {
	return b.engine.changeState(ctx, activity, runtime.ActivityCanceled)
}

func (b *defaultBehavior) Terminate(ctx context.Context, activity *runtime.ActivityExecution, withInterruption bool) error {
	return b.engine.changeState(ctx, activity, runtime.ActivityTerminated)
}

func (b *defaultBehavior) Fail(ctx context.Context, activity *runtime.ActivityExecution, failure *runtime.ActivityFailure) (bool, error) {
	activity.Failure = failure
	if err := b.engine.changeState(ctx, activity, runtime.ActivityFailed); err != nil {
		return false, err
	}
	return true, nil
}

func (b *defaultBehavior) Retry(ctx context.Context, activity *runtime.ActivityExecution) error {
	activity.Failure = nil
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	b.engine.dispatchAsync(ctx, RunActivityCommand{Ref: RefById(activity.Id)})
	return nil
}

// externalTaskBehavior hands the activity to workers polling its topic.
type externalTaskBehavior struct {
	*defaultBehavior
}

func (b *externalTaskBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	return b.schedule(ctx, activity)
}

func (b *externalTaskBehavior) schedule(ctx context.Context, activity *runtime.ActivityExecution) error {
	now := time.Now()
	timeout := b.engine.config.taskTimeout(activity.Definition, activity.DefinitionKey, now)
	activity.Timeout = &timeout
	if err := b.engine.changeState(ctx, activity, runtime.ActivityScheduled); err != nil {
		return err
	}
	err := b.engine.persistence.PushQueue(ctx, storage.QueueItem{
		ActivityId:           activity.Id,
		Topic:                activity.Topic,
		ProcessDefinitionKey: activity.DefinitionKey,
		CreatedAt:            now,
	})
	if err != nil {
		return fmt.Errorf("failed to queue activity %s on topic %s: %w", activity.Id, activity.Topic, err)
	}
	return nil
}

func (b *externalTaskBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if err := b.engine.persistence.RemoveFromQueue(ctx, activity.Id); err != nil {
		return nil, err
	}
	activity.Timeout = nil
	return b.defaultBehavior.Complete(ctx, activity, variables)
}

func (b *externalTaskBehavior) Cancel(ctx context.Context, activity *runtime.ActivityExecution) error {
	if err := b.engine.persistence.RemoveFromQueue(ctx, activity.Id); err != nil {
		return err
	}
	return b.defaultBehavior.Cancel(ctx, activity)
}

func (b *externalTaskBehavior) Terminate(ctx context.Context, activity *runtime.ActivityExecution, withInterruption bool) error {
	if err := b.engine.persistence.RemoveFromQueue(ctx, activity.Id); err != nil {
		return err
	}
	return b.defaultBehavior.Terminate(ctx, activity, withInterruption)
}

// Fail reschedules the task while it has retries left.
func (b *externalTaskBehavior) Fail(ctx context.Context, activity *runtime.ActivityExecution, failure *runtime.ActivityFailure) (bool, error) {
	if activity.Retries < b.engine.config.maxRetries(activity.Definition, activity.DefinitionKey) {
		activity.Failure = failure
		activity.Timeout = nil
		if err := b.engine.saveActivity(ctx, activity); err != nil {
			return false, err
		}
		b.engine.dispatchAsync(ctx, RetryActivityCommand{Ref: RefById(activity.Id)})
		return false, nil
	}
	if err := b.engine.persistence.RemoveFromQueue(ctx, activity.Id); err != nil {
		return false, err
	}
	activity.Timeout = nil
	return b.defaultBehavior.Fail(ctx, activity, failure)
}

func (b *externalTaskBehavior) Retry(ctx context.Context, activity *runtime.ActivityExecution) error {
	activity.Retries++
	activity.Failure = nil
	return b.schedule(ctx, activity)
}

// messageThrowBehavior publishes its message once done. With a topic the
// message is first handed to a worker like an external task.
type messageThrowBehavior struct {
	*externalTaskBehavior
}

func (b *messageThrowBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	if activity.Topic != "" {
		return b.externalTaskBehavior.Run(ctx, activity)
	}
	return b.defaultBehavior.Run(ctx, activity)
}

func (b *messageThrowBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if err := b.correlate(ctx, activity); err != nil {
		return nil, err
	}
	return b.externalTaskBehavior.Complete(ctx, activity, variables)
}

// correlate sends the message with the business key of the process and the local variables as payload.
func (b *messageThrowBehavior) correlate(ctx context.Context, activity *runtime.ActivityExecution) error {
	message := activity.Definition.MessageReference()
	if activity.Process.BusinessKey == "" {
		b.engine.logger.Warn("message not sent, process has no business key", "message", message, "process", activity.ProcessId)
		return nil
	}
	_, err := b.engine.dispatcher.Execute(ctx, CorrelateMessageCommand{
		Message:     message,
		BusinessKey: activity.Process.BusinessKey,
		Variables:   activity.Variables,
	})
	if err != nil {
		return fmt.Errorf("failed to send message %s: %w", message, err)
	}
	return nil
}
