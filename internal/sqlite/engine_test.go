package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parallelTasks = `
key: SqliteParallelProcess
activities:
  - id: start
    type: START_EVENT
    outgoing: [fork]
  - id: fork
    type: PARALLEL_GATEWAY
    incoming: [start]
    outgoing: [invoice, ship]
  - id: invoice
    type: EXTERNAL_TASK
    incoming: [fork]
    outgoing: [join]
    external:
      topic: sqlite-invoice
  - id: ship
    type: EXTERNAL_TASK
    incoming: [fork]
    outgoing: [join]
    external:
      topic: sqlite-ship
  - id: join
    type: PARALLEL_GATEWAY
    incoming: [invoice, ship]
    outgoing: [end]
  - id: end
    type: END_EVENT
    incoming: [join]
`

func newSqliteEngine(t *testing.T) *bpmn.Engine {
	t.Helper()
	store := openTestStore(t, filepath.Join(t.TempDir(), "engine.db"))
	config := bpmn.DefaultConfig()
	config.TimeoutScanInterval = 0
	config.CompactionInterval = 0
	engine := bpmn.NewEngine(bpmn.EngineWithStorage(store), bpmn.EngineWithConfig(config))
	t.Cleanup(engine.Stop)
	return engine
}

func settle(t *testing.T, engine *bpmn.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, engine.Idle(ctx))
}

func completeTask(t *testing.T, engine *bpmn.Engine, topic string) {
	t.Helper()
	tasks, err := engine.PollExternalTasks(t.Context(), topic, "", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NoError(t, engine.CompleteExternalTask(t.Context(), tasks[0].Id, map[string]any{topic: "done"}))
	settle(t, engine)
}

func TestEngineRunsParallelProcessOnSqlite(t *testing.T) {
	// setup
	engine := newSqliteEngine(t)
	_, err := engine.DeployYaml(t.Context(), []byte(parallelTasks), "parallel.yaml")
	require.NoError(t, err)

	// given
	process, err := engine.StartProcessByKey(t.Context(), "SqliteParallelProcess", "BK-sqlite", map[string]any{"amount": 10})
	require.NoError(t, err)
	settle(t, engine)

	// when
	completeTask(t, engine, "sqlite-invoice")
	intermediate, err := engine.Storage().FindProcessById(t.Context(), process.Id)
	require.NoError(t, err)
	completeTask(t, engine, "sqlite-ship")

	// then
	assert.Equal(t, runtime.ProcessActive, intermediate.State)
	execution, err := engine.GetProcess(t.Context(), process.Id)
	require.NoError(t, err)
	assert.Equal(t, runtime.ProcessCompleted, execution.Process.State)
	values := map[string]any{}
	for _, v := range execution.Variables {
		value, err := v.GetValue()
		require.NoError(t, err)
		values[v.Key] = value
	}
	assert.Equal(t, float64(10), values["amount"])
	assert.Equal(t, "done", values["sqlite-invoice"])
	assert.Equal(t, "done", values["sqlite-ship"])
}

func TestCompactionMovesFinishedProcessIntoSqliteHistory(t *testing.T) {
	// setup
	engine := newSqliteEngine(t)
	_, err := engine.DeployYaml(t.Context(), []byte(parallelTasks), "parallel.yaml")
	require.NoError(t, err)
	process, err := engine.StartProcessByKey(t.Context(), "SqliteParallelProcess", "BK-compact", nil)
	require.NoError(t, err)
	settle(t, engine)

	// given
	require.NoError(t, engine.TerminateProcess(t.Context(), process.Id))
	settle(t, engine)

	// when
	job, err := engine.CompactHistory(t.Context(), 10)
	require.NoError(t, err)

	// then
	assert.Equal(t, runtime.JobCompleted, job.State)
	archived, err := engine.Storage().FindHistory(t.Context(), process.Id)
	require.NoError(t, err)
	assert.Equal(t, runtime.ProcessTerminated, archived.Process.State)
	fromApi, err := engine.GetProcess(t.Context(), process.Id)
	require.NoError(t, err)
	assert.Equal(t, process.Id, fromApi.Process.Id)
}
