// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory_test

import (
	"testing"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/pbinitiative/zenorchestrator/pkg/storage/inmemory"
	"github.com/pbinitiative/zenorchestrator/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStorageContract(t *testing.T) {
	store := inmemory.NewStorage()
	tester := storagetest.StorageTester{}
	tester.PrepareTestData(store, t)
	for name, testFunc := range tester.GetTests() {
		t.Run(name, testFunc(store, t))
	}
}

func TestDeleteProcessRemovesEverythingItOwns(t *testing.T) {
	// setup
	ctx := t.Context()
	store := inmemory.NewStorage()
	now := time.Now()
	kept := runtime.Process{Id: "kept", RootProcessId: "kept", State: runtime.ProcessActive, CreatedAt: now, UpdatedAt: now, StartedAt: now}
	deleted := runtime.Process{Id: "deleted", RootProcessId: "deleted", State: runtime.ProcessActive, CreatedAt: now, UpdatedAt: now, StartedAt: now}

	// given
	for _, p := range []runtime.Process{kept, deleted} {
		require.NoError(t, store.SaveProcess(ctx, p))
		activityId := "task-" + p.Id
		require.NoError(t, store.SaveActivity(ctx, runtime.ActivityExecution{
			Id: activityId, DefinitionId: "task", ProcessId: p.Id, Type: model.ActivityTypeExternalTask,
			State: runtime.ActivityActive, Topic: "cleanup", CreatedAt: now,
		}))
		require.NoError(t, store.PushQueue(ctx, storage.QueueItem{ActivityId: activityId, Topic: "cleanup"}))
		v, err := runtime.NewVariable("amount", 10)
		require.NoError(t, err)
		v.ProcessId = p.Id
		_, err = store.SaveVariables(ctx, []runtime.Variable{v})
		require.NoError(t, err)
	}

	// when
	require.NoError(t, store.DeleteProcess(ctx, deleted.Id))

	// then
	_, err := store.FindProcessById(ctx, deleted.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.FindActivityById(ctx, "task-"+deleted.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	vars, err := store.FindVariablesInProcess(ctx, deleted.Id)
	require.NoError(t, err)
	assert.Empty(t, vars)

	queued, err := store.PollQueue(ctx, "cleanup", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"task-" + kept.Id}, queued)

	assert.ErrorIs(t, store.DeleteProcess(ctx, deleted.Id), storage.ErrNotFound)
}
