// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"errors"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

var (
	ErrActivityNotFound     = errors.New("activity not found")
	ErrProcessNotFound      = errors.New("process not found")
	ErrDefinitionNotFound   = errors.New("process definition not found")
	ErrHandlerNotFound      = errors.New("command handler not found")
	ErrBehaviorNotFound     = errors.New("activity behavior not found")
	ErrDefinitionSuspended  = errors.New("process definition is suspended")
	ErrAmbiguousCorrelation = errors.New("message correlates with more than one process")
	ErrProcessNotActive     = errors.New("process is not active")
	ErrNoValidPath          = errors.New("no valid path")
	ErrIllegalArgument      = model.ErrIllegalArgument
)

type BpmnEngineError struct {
	Msg string
}

func (e *BpmnEngineError) Error() string {
	return e.Msg
}

// newEngineErrorf uses fmt.Sprintf(format, a...) to format the message
func newEngineErrorf(format string, a ...interface{}) error {
	return &BpmnEngineError{
		Msg: fmt.Sprintf(format, a...),
	}
}

// ExecutionError is returned to the synchronous caller when a behavior failed.
// The failure has already been handed to the fail/retry machinery.
type ExecutionError struct {
	ActivityId string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of activity %s failed: %s", e.ActivityId, e.Err.Error())
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type ExpressionEvaluationError struct {
	Msg string
	Err error
}

func (e *ExpressionEvaluationError) Error() string {
	if e.Err != nil {
		return e.Msg + "\nerror: " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExpressionEvaluationError) Unwrap() error {
	return e.Err
}

// notFound converts the storage not found error into the engine specific one.
func notFound(err error, target error, format string, a ...any) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errors.Join(target, newEngineErrorf(format, a...))
	}
	return errors.Join(newEngineErrorf(format, a...), err)
}
