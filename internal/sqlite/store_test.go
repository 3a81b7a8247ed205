package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/pbinitiative/zenorchestrator/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(t.Context(), Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSqliteStorage(t *testing.T) {
	var store storage.Storage = openTestStore(t, filepath.Join(t.TempDir(), "contract.db"))

	tester := storagetest.StorageTester{}

	tests := tester.GetTests()
	tester.PrepareTestData(store, t)
	for name, testFunc := range tests {
		t.Run(name, testFunc(store, t))
	}
}

func TestReopenKeepsDataAndSkipsApplyingMigrations(t *testing.T) {
	// setup
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := Open(t.Context(), Config{Path: path})
	require.NoError(t, err)

	// given
	saved, err := first.SaveDefinitions(t.Context(), []model.ProcessDefinition{{
		Key: "Reopened",
		Activities: []model.ActivityDefinition{
			{Id: "start", Type: model.ActivityTypeStartEvent, Outgoing: []string{"end"}},
			{Id: "end", Type: model.ActivityTypeEndEvent, Incoming: []string{"start"}},
		},
		Metadata: model.Metadata{Schema: "reopened"},
	}})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// when
	second := openTestStore(t, path)

	// then
	definition, err := second.FindDefinitionById(t.Context(), saved[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "Reopened", definition.Key)
	start, err := definition.GetStartActivity()
	require.NoError(t, err)
	assert.Equal(t, "start", start.Id)
}

func TestInMemoryDatabase(t *testing.T) {
	store := openTestStore(t, ":memory:")

	process := runtime.Process{Id: store.GenerateId(), State: runtime.ProcessActive}
	process.RootProcessId = process.Id
	require.NoError(t, store.SaveProcess(t.Context(), process))

	found, err := store.FindProcessById(t.Context(), process.Id)
	require.NoError(t, err)
	assert.Equal(t, runtime.ProcessActive, found.State)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(t.Context(), Config{})
	assert.Error(t, err)
}
