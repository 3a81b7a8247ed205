package storagetest

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	stdruntime "runtime"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StorageTestFunc func(s storage.Storage, t *testing.T) func(t *testing.T)

// StorageTester is the contract every storage.Storage implementation has to satisfy.
type StorageTester struct {
	definition model.ProcessDefinition
	process    runtime.Process
}

func (st *StorageTester) GetTests() map[string]StorageTestFunc {
	tests := map[string]StorageTestFunc{}

	// all test functions need to be registered here
	functions := []StorageTestFunc{
		st.TestDefinitionStorageVersioning,
		st.TestDefinitionStorageSuspension,
		st.TestProcessStorageReader,
		st.TestProcessStorageByVariables,
		st.TestProcessStorageFullyCompleted,
		st.TestActivityStorageWriter,
		st.TestActivityStorageReader,
		st.TestActivityStorageTimedOut,
		st.TestActivityStorageJoinArrive,
		st.TestActivityStoragePollIsExclusive,
		st.TestQueueStoragePollIsExclusive,
		st.TestQueueStorageIsolatesTopics,
		st.TestVariableStorageUpsert,
		st.TestHistoryStorage,
		st.TestJobStorage,
		st.TestShedlockStorage,
	}

	for _, function := range functions {
		funcName := getFunctionName(function)
		strippedName := funcName[strings.LastIndex(funcName, ".")+1:]
		strippedName = strings.TrimSuffix(strippedName, "-fm")
		tests[strippedName] = function
	}
	return tests
}

func getFunctionName(i any) string {
	return stdruntime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

func getDefinition(key string) model.ProcessDefinition {
	return model.ProcessDefinition{
		Key:  key,
		Name: "Storage test " + key,
		Activities: []model.ActivityDefinition{
			{Id: "start", Type: model.ActivityTypeStartEvent, Outgoing: []string{"task"}},
			{Id: "task", Type: model.ActivityTypeExternalTask, Incoming: []string{"start"}, Outgoing: []string{"end"}, External: &model.ExternalCapability{Topic: "storage-test"}},
			{Id: "end", Type: model.ActivityTypeEndEvent, Incoming: []string{"task"}},
		},
		Metadata: model.Metadata{Origin: "test", Schema: "schema-" + key},
	}
}

func getProcess(s storage.Storage, definition model.ProcessDefinition) runtime.Process {
	id := s.GenerateId()
	now := time.Now()
	return runtime.Process{
		Id:            id,
		RootProcessId: id,
		BusinessKey:   "bk-" + id,
		State:         runtime.ProcessActive,
		DefinitionId:  definition.Id,
		CreatedAt:     now,
		UpdatedAt:     now,
		StartedAt:     now,
	}
}

func getActivity(s storage.Storage, process runtime.Process, definitionId string, state runtime.ActivityState) runtime.ActivityExecution {
	return runtime.ActivityExecution{
		Id:            s.GenerateId(),
		DefinitionId:  definitionId,
		ProcessId:     process.Id,
		Type:          model.ActivityTypeExternalTask,
		State:         state,
		Topic:         "storage-test",
		DefinitionKey: "key-" + process.Id,
		CreatedAt:     time.Now(),
	}
}

func mustVariable(t *testing.T, process runtime.Process, key string, value any) runtime.Variable {
	v, err := runtime.NewVariable(key, value)
	require.NoError(t, err)
	v.ProcessId = process.Id
	return v
}

// PrepareTestData will prepare common data for the tests
func (st *StorageTester) PrepareTestData(s storage.Storage, t *testing.T) {
	definitions, err := s.SaveDefinitions(t.Context(), []model.ProcessDefinition{getDefinition("prepared-" + s.GenerateId())})
	require.NoError(t, err)
	st.definition = definitions[0]

	st.process = getProcess(s, st.definition)
	err = s.SaveProcess(t.Context(), st.process)
	require.NoError(t, err)
}

func (st *StorageTester) TestDefinitionStorageVersioning(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		key := "versioned-" + s.GenerateId()
		first := getDefinition(key)

		saved, err := s.SaveDefinitions(t.Context(), []model.ProcessDefinition{first})
		require.NoError(t, err)
		assert.Equal(t, 1, saved[0].Version)
		assert.NotEmpty(t, saved[0].Id)

		again, err := s.SaveDefinitions(t.Context(), []model.ProcessDefinition{first})
		require.NoError(t, err)
		assert.Equal(t, saved[0].Id, again[0].Id)

		changed := getDefinition(key)
		changed.Metadata.Schema = "changed"
		second, err := s.SaveDefinitions(t.Context(), []model.ProcessDefinition{changed})
		require.NoError(t, err)
		assert.Equal(t, 2, second[0].Version)

		latest, err := s.FindLatestDefinitionByKey(t.Context(), key)
		require.NoError(t, err)
		assert.Equal(t, second[0].Id, latest.Id)
		assert.Len(t, latest.Activities, 3)

		v1, err := s.FindDefinitionByKeyAndVersion(t.Context(), key, 1)
		require.NoError(t, err)
		assert.Equal(t, saved[0].Id, v1.Id)

		byId, err := s.FindDefinitionById(t.Context(), second[0].Id)
		require.NoError(t, err)
		assert.Equal(t, "task", byId.Activities[1].Id)
		assert.Equal(t, "storage-test", byId.Activities[1].Topic())

		_, err = s.FindDefinitionById(t.Context(), "missing-"+s.GenerateId())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		all, err := s.FindAllDefinitions(t.Context(), storage.Page{})
		require.NoError(t, err)
		assert.True(t, slices.ContainsFunc(all, func(d model.ProcessDefinition) bool { return d.Id == v1.Id }))
	}
}

func (st *StorageTester) TestDefinitionStorageSuspension(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		key := "suspended-" + s.GenerateId()
		v1, err := s.SaveDefinitions(t.Context(), []model.ProcessDefinition{getDefinition(key)})
		require.NoError(t, err)
		changed := getDefinition(key)
		changed.Metadata.Schema = "v2"
		_, err = s.SaveDefinitions(t.Context(), []model.ProcessDefinition{changed})
		require.NoError(t, err)

		count, err := s.SetDefinitionSuspendedByKey(t.Context(), key, true)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		err = s.SetDefinitionSuspendedById(t.Context(), v1[0].Id, false)
		require.NoError(t, err)

		d1, err := s.FindDefinitionById(t.Context(), v1[0].Id)
		require.NoError(t, err)
		assert.False(t, d1.Suspended)
		latest, err := s.FindLatestDefinitionByKey(t.Context(), key)
		require.NoError(t, err)
		assert.True(t, latest.Suspended)

		err = s.SetDefinitionSuspendedById(t.Context(), "missing-"+s.GenerateId(), true)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestProcessStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process, err := s.FindProcessById(t.Context(), st.process.Id)
		require.NoError(t, err)
		assert.Equal(t, st.process.BusinessKey, process.BusinessKey)
		assert.Equal(t, st.definition.Id, process.DefinitionId)

		byKey, err := s.FindProcessesByBusinessKey(t.Context(), st.process.BusinessKey)
		require.NoError(t, err)
		assert.Len(t, byKey, 1)

		updated, err := s.UpdateProcessState(t.Context(), st.process.Id, runtime.ProcessIncident)
		require.NoError(t, err)
		assert.Equal(t, runtime.ProcessIncident, updated.State)
		assert.Nil(t, updated.CompletedAt)

		_, err = s.UpdateProcessState(t.Context(), st.process.Id, runtime.ProcessActive)
		require.NoError(t, err)

		_, err = s.FindProcessById(t.Context(), "missing-"+s.GenerateId())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		none, err := s.FindProcessesByBusinessKey(t.Context(), "missing-"+s.GenerateId())
		require.NoError(t, err)
		assert.Empty(t, none)
	}
}

func (st *StorageTester) TestProcessStorageByVariables(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process := getProcess(s, st.definition)
		require.NoError(t, s.SaveProcess(t.Context(), process))
		_, err := s.SaveVariables(t.Context(), []runtime.Variable{
			mustVariable(t, process, "orderId", "order-"+process.Id),
			mustVariable(t, process, "amount", 42),
		})
		require.NoError(t, err)

		found, err := s.FindProcessesByVariables(t.Context(), map[string]any{"orderId": "order-" + process.Id})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, process.Id, found[0].Id)

		found, err = s.FindProcessesByBusinessKeyAndVariables(t.Context(), process.BusinessKey, map[string]any{"orderId": "order-" + process.Id, "amount": 42})
		require.NoError(t, err)
		assert.Len(t, found, 1)

		found, err = s.FindProcessesByBusinessKeyAndVariables(t.Context(), process.BusinessKey, map[string]any{"amount": 43})
		require.NoError(t, err)
		assert.Empty(t, found)
	}
}

func (st *StorageTester) TestProcessStorageFullyCompleted(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		root := getProcess(s, st.definition)
		root.State = runtime.ProcessCompleted
		child := getProcess(s, st.definition)
		child.ParentId = root.Id
		child.RootProcessId = root.Id
		child.State = runtime.ProcessActive
		require.NoError(t, s.SaveProcess(t.Context(), root))
		require.NoError(t, s.SaveProcess(t.Context(), child))

		completed, err := s.FindAllFullyCompleted(t.Context(), 0)
		require.NoError(t, err)
		assert.False(t, slices.ContainsFunc(completed, func(e runtime.ProcessExecution) bool { return e.Process.Id == root.Id }))

		_, err = s.UpdateProcessState(t.Context(), child.Id, runtime.ProcessTerminated)
		require.NoError(t, err)

		completed, err = s.FindAllFullyCompleted(t.Context(), 0)
		require.NoError(t, err)
		assert.True(t, slices.ContainsFunc(completed, func(e runtime.ProcessExecution) bool { return e.Process.Id == root.Id }))
		assert.True(t, slices.ContainsFunc(completed, func(e runtime.ProcessExecution) bool { return e.Process.Id == child.Id }))
	}
}

func (st *StorageTester) TestActivityStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		activity := getActivity(s, st.process, "task", runtime.ActivityActive)
		activity.Variables = map[string]any{"a": "b"}
		activity.Failure = runtime.FailureOf("boom")
		require.NoError(t, s.SaveActivity(t.Context(), activity))

		stored, err := s.FindActivityById(t.Context(), activity.Id)
		require.NoError(t, err)
		assert.Equal(t, "b", stored.Variables["a"])
		assert.Equal(t, "boom", stored.Failure.Reason)

		require.NoError(t, s.ChangeActivityState(t.Context(), activity.Id, runtime.ActivityCompleted))
		stored, err = s.FindActivityById(t.Context(), activity.Id)
		require.NoError(t, err)
		assert.Equal(t, runtime.ActivityCompleted, stored.State)
		assert.NotNil(t, stored.CompletedAt)

		require.NoError(t, s.DeleteActivity(t.Context(), activity.Id))
		_, err = s.FindActivityById(t.Context(), activity.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestActivityStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process := getProcess(s, st.definition)
		require.NoError(t, s.SaveProcess(t.Context(), process))

		done := getActivity(s, process, "task", runtime.ActivityCompleted)
		require.NoError(t, s.SaveActivity(t.Context(), done))
		active := getActivity(s, process, "task", runtime.ActivityActive)
		require.NoError(t, s.SaveActivity(t.Context(), active))
		other := getActivity(s, process, "other", runtime.ActivityScheduled)
		require.NoError(t, s.SaveActivity(t.Context(), other))

		byDefinition, err := s.FindActivityByDefinitionId(t.Context(), process.Id, "task")
		require.NoError(t, err)
		assert.Equal(t, active.Id, byDefinition.Id)

		_, err = s.FindActivityByDefinitionId(t.Context(), process.Id, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		all, err := s.FindActivitiesByProcessId(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		byIds, err := s.FindActivitiesByIds(t.Context(), []string{done.Id, other.Id})
		require.NoError(t, err)
		assert.Len(t, byIds, 2)

		activeOnes, err := s.FindActiveActivities(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Len(t, activeOnes, 2)
		activeOnes, err = s.FindActiveActivities(t.Context(), process.Id, "other")
		require.NoError(t, err)
		assert.Len(t, activeOnes, 1)

		allCompleted, err := s.IsAllCompleted(t.Context(), process.Id)
		require.NoError(t, err)
		assert.False(t, allCompleted)

		require.NoError(t, s.ChangeActivityState(t.Context(), active.Id, runtime.ActivityFailed))
		anyFailed, err := s.IsAnyFailed(t.Context(), process.Id)
		require.NoError(t, err)
		assert.True(t, anyFailed)
		failed, err := s.FindFailed(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Len(t, failed, 1)

		require.NoError(t, s.DeleteAllActive(t.Context(), process.Id, []string{"other"}))
		require.NoError(t, s.ChangeActivityState(t.Context(), active.Id, runtime.ActivityTerminated))
		allCompleted, err = s.IsAllCompleted(t.Context(), process.Id)
		require.NoError(t, err)
		assert.True(t, allCompleted)
	}
}

func (st *StorageTester) TestActivityStorageTimedOut(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process := getProcess(s, st.definition)
		require.NoError(t, s.SaveProcess(t.Context(), process))

		past := time.Now().Add(-time.Hour)
		future := time.Now().Add(time.Hour)
		expired := getActivity(s, process, "task", runtime.ActivityScheduled)
		expired.Timeout = &past
		pending := getActivity(s, process, "task", runtime.ActivityActive)
		pending.Timeout = &future
		finished := getActivity(s, process, "task", runtime.ActivityCompleted)
		finished.Timeout = &past
		for _, a := range []runtime.ActivityExecution{expired, pending, finished} {
			require.NoError(t, s.SaveActivity(t.Context(), a))
		}

		timedOut, err := s.FindTimedOut(t.Context(), time.Now(), 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(timedOut))
		for _, a := range timedOut {
			ids = append(ids, a.Id)
		}
		assert.Contains(t, ids, expired.Id)
		assert.NotContains(t, ids, pending.Id)
		assert.NotContains(t, ids, finished.Id)
	}
}

func (st *StorageTester) TestActivityStorageJoinArrive(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		processId := s.GenerateId()
		const expected = 5

		var wg sync.WaitGroup
		results := make(chan bool, expected)
		for range expected {
			wg.Add(1)
			go func() {
				defer wg.Done()
				last, err := s.JoinArrive(t.Context(), processId, "join", expected)
				assert.NoError(t, err)
				results <- last
			}()
		}
		wg.Wait()
		close(results)

		lasts := 0
		for last := range results {
			if last {
				lasts++
			}
		}
		assert.Equal(t, 1, lasts)

		// the counter restarts for the next round
		last, err := s.JoinArrive(t.Context(), processId, "join", 1)
		require.NoError(t, err)
		assert.True(t, last)
	}
}

func (st *StorageTester) TestActivityStoragePollIsExclusive(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process := getProcess(s, st.definition)
		require.NoError(t, s.SaveProcess(t.Context(), process))
		const total = 20
		for range total {
			require.NoError(t, s.SaveActivity(t.Context(), getActivity(s, process, "task", runtime.ActivityScheduled)))
		}

		claimed := pollConcurrently(t, 4, func() ([]string, error) {
			activities, err := s.Poll(t.Context(), "storage-test", "key-"+process.Id, 3)
			ids := make([]string, 0, len(activities))
			for _, a := range activities {
				assert.Equal(t, runtime.ActivityActive, a.State)
				ids = append(ids, a.Id)
			}
			return ids, err
		})
		assert.Len(t, claimed, total)
	}
}

func (st *StorageTester) TestQueueStoragePollIsExclusive(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		topic := "exclusive-" + s.GenerateId()
		const total = 30
		for i := range total {
			err := s.PushQueue(t.Context(), storage.QueueItem{
				ActivityId:           fmt.Sprintf("%s-%d", topic, i),
				Topic:                topic,
				ProcessDefinitionKey: "OrderProcess",
			})
			require.NoError(t, err)
		}

		claimed := pollConcurrently(t, 5, func() ([]string, error) {
			return s.PollQueue(t.Context(), topic, "OrderProcess", 4)
		})
		assert.Len(t, claimed, total)
	}
}

func (st *StorageTester) TestQueueStorageIsolatesTopics(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		topicA := "a-" + s.GenerateId()
		topicB := "b-" + s.GenerateId()
		require.NoError(t, s.PushQueue(t.Context(), storage.QueueItem{ActivityId: topicA + "-1", Topic: topicA, ProcessDefinitionKey: "P"}))
		require.NoError(t, s.PushQueue(t.Context(), storage.QueueItem{ActivityId: topicB + "-1", Topic: topicB, ProcessDefinitionKey: "P"}))
		require.NoError(t, s.PushQueue(t.Context(), storage.QueueItem{ActivityId: topicA + "-2", Topic: topicA, ProcessDefinitionKey: "Q"}))
		require.NoError(t, s.PushQueue(t.Context(), storage.QueueItem{ActivityId: topicA + "-3", Topic: topicA, ProcessDefinitionKey: "P"}))
		require.NoError(t, s.RemoveFromQueue(t.Context(), topicA+"-3"))

		polled, err := s.PollQueue(t.Context(), topicA, "P", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{topicA + "-1"}, polled)

		polled, err = s.PollQueue(t.Context(), topicA, "P", 10)
		require.NoError(t, err)
		assert.Empty(t, polled)

		polled, err = s.PollQueue(t.Context(), topicB, "P", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{topicB + "-1"}, polled)

		polled, err = s.PollQueue(t.Context(), topicA, "Q", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{topicA + "-2"}, polled)
	}
}

func pollConcurrently(t *testing.T, pollers int, poll func() ([]string, error)) []string {
	var mu sync.Mutex
	var wg sync.WaitGroup
	claimed := make([]string, 0)
	for range pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ids, err := poll()
				if !assert.NoError(t, err) || len(ids) == 0 {
					return
				}
				mu.Lock()
				claimed = append(claimed, ids...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		_, duplicate := seen[id]
		assert.False(t, duplicate, "item %s claimed twice", id)
		seen[id] = struct{}{}
	}
	return claimed
}

func (st *StorageTester) TestVariableStorageUpsert(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process := getProcess(s, st.definition)
		require.NoError(t, s.SaveProcess(t.Context(), process))

		global := mustVariable(t, process, "status", "NEW")
		local := mustVariable(t, process, "status", "LOCAL")
		local.ExecutionId = "exec-1"
		local.ExecutionDefinitionId = "sub"
		foreign := mustVariable(t, process, "status", "FOREIGN")
		foreign.ExecutionId = "exec-2"
		foreign.ExecutionDefinitionId = "other"
		saved, err := s.SaveVariables(t.Context(), []runtime.Variable{global, local, foreign})
		require.NoError(t, err)
		require.Len(t, saved, 3)

		update := mustVariable(t, process, "status", "DONE")
		updated, err := s.SaveVariables(t.Context(), []runtime.Variable{update})
		require.NoError(t, err)
		assert.Equal(t, saved[0].Id, updated[0].Id)

		inScope, err := s.FindVariablesInScope(t.Context(), process.Id, []string{"sub"})
		require.NoError(t, err)
		assert.Len(t, inScope, 2)

		holder, err := runtime.NewScopedVariableHolder(inScope, []string{"task", "sub", process.DefinitionId})
		require.NoError(t, err)
		status, _ := holder.GetVariable("status")
		assert.Equal(t, "LOCAL", status)
		assert.Equal(t, "DONE", holder.Parent().Parent().LocalVariables()["status"])

		all, err := s.FindVariablesInProcess(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	}
}

func (st *StorageTester) TestHistoryStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		process := getProcess(s, st.definition)
		process.State = runtime.ProcessCompleted
		require.NoError(t, s.SaveProcess(t.Context(), process))
		require.NoError(t, s.SaveActivity(t.Context(), getActivity(s, process, "task", runtime.ActivityCompleted)))
		_, err := s.SaveVariables(t.Context(), []runtime.Variable{mustVariable(t, process, "x", 1)})
		require.NoError(t, err)

		execution, err := s.FindProcessExecutionById(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Len(t, execution.Activities, 1)
		assert.Len(t, execution.Variables, 1)

		require.NoError(t, s.SaveHistory(t.Context(), []runtime.ProcessExecution{execution}))

		_, err = s.FindProcessById(t.Context(), process.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		activities, err := s.FindActivitiesByProcessId(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Empty(t, activities)

		archived, err := s.FindHistory(t.Context(), process.Id)
		require.NoError(t, err)
		assert.Equal(t, process.Id, archived.Process.Id)
		assert.Len(t, archived.Activities, 1)
		assert.Len(t, archived.Variables, 1)
	}
}

func (st *StorageTester) TestJobStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		job := runtime.Job{
			Id:        s.GenerateId(),
			Type:      "compaction",
			Input:     map[string]any{"limit": float64(10)},
			State:     runtime.JobCreated,
			CreatedAt: time.Now(),
		}
		require.NoError(t, s.SaveJob(t.Context(), job))

		job.State = runtime.JobCompleted
		job.Output = map[string]any{"archived": float64(3)}
		require.NoError(t, s.SaveJob(t.Context(), job))

		stored, err := s.FindJobById(t.Context(), job.Id)
		require.NoError(t, err)
		assert.Equal(t, runtime.JobCompleted, stored.State)
		assert.Equal(t, float64(3), stored.Output["archived"])

		jobs, err := s.FindJobs(t.Context(), storage.Page{})
		require.NoError(t, err)
		assert.NotEmpty(t, jobs)

		_, err = s.FindJobById(t.Context(), "missing-"+s.GenerateId())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestShedlockStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		name := "lock-" + s.GenerateId()
		until := time.Now().Add(time.Minute)

		acquired, err := s.TryAcquireLock(t.Context(), name, until, "node-a")
		require.NoError(t, err)
		assert.True(t, acquired)

		acquired, err = s.TryAcquireLock(t.Context(), name, until, "node-b")
		require.NoError(t, err)
		assert.False(t, acquired)

		require.NoError(t, s.ReleaseLock(t.Context(), name))
		acquired, err = s.TryAcquireLock(t.Context(), name, until, "node-b")
		require.NoError(t, err)
		assert.True(t, acquired)

		expired := "expired-" + s.GenerateId()
		_, err = s.TryAcquireLock(t.Context(), expired, time.Now().Add(-time.Second), "node-a")
		require.NoError(t, err)
		acquired, err = s.TryAcquireLock(t.Context(), expired, until, "node-b")
		require.NoError(t, err)
		assert.True(t, acquired)
	}
}
