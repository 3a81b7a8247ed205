package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pbinitiative/zenorchestrator/internal/config"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewProcess = `
key: RestReviewProcess
name: Review over REST
activities:
  - id: start
    type: START_EVENT
    outgoing: [review]
  - id: review
    type: EXTERNAL_TASK
    incoming: [start]
    outgoing: [end]
    external:
      topic: rest-review
  - id: end
    type: END_EVENT
    incoming: [review]
`

type testApi struct {
	engine *bpmn.Engine
	server *httptest.Server
}

func newTestApi(t *testing.T) *testApi {
	t.Helper()
	engineConf := bpmn.DefaultConfig()
	engineConf.TimeoutScanInterval = 0
	engineConf.CompactionInterval = 0
	engine := bpmn.NewEngine(bpmn.EngineWithConfig(engineConf), bpmn.EngineWithName("rest-test"))
	t.Cleanup(engine.Stop)

	conf := config.Config{Name: "rest-test", Storage: config.Storage{Driver: config.StorageMemory}}
	s, err := NewServer(engine, conf, nil)
	require.NoError(t, err)
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return &testApi{engine: engine, server: server}
}

func (a *testApi) call(t *testing.T, method string, path string, contentType string, body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, a.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (a *testApi) callJson(t *testing.T, method string, path string, body any) (int, []byte) {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return a.call(t, method, path, "application/json", data)
}

func (a *testApi) idle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.engine.Idle(ctx))
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var res T
	require.NoError(t, json.Unmarshal(data, &res), string(data))
	return res
}

func TestProcessRunsToCompletionThroughApi(t *testing.T) {
	// setup
	api := newTestApi(t)
	status, body := api.call(t, http.MethodPost, "/v1/definitions?deployment=review.yaml", "text/plain", []byte(reviewProcess))
	require.Equal(t, http.StatusCreated, status, string(body))
	deployed := decode[[]model.ProcessDefinition](t, body)
	require.Len(t, deployed, 1)

	// given
	status, body = api.callJson(t, http.MethodPost, "/v1/processes", map[string]any{
		"key":         "RestReviewProcess",
		"businessKey": "BK-rest",
		"variables":   map[string]any{"reviewer": "alice"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	process := decode[runtime.Process](t, body)
	api.idle(t)

	status, body = api.callJson(t, http.MethodPost, "/v1/external-tasks/poll", map[string]any{"topic": "rest-review"})
	require.Equal(t, http.StatusOK, status, string(body))
	tasks := decode[[]bpmn.ExternalTask](t, body)
	require.Len(t, tasks, 1)

	// when
	status, body = api.callJson(t, http.MethodPost, "/v1/external-tasks/"+tasks[0].Id+"/complete", map[string]any{
		"variables": map[string]any{"approved": true},
	})
	require.Equal(t, http.StatusNoContent, status, string(body))
	api.idle(t)

	// then
	assert.Equal(t, "BK-rest", tasks[0].BusinessKey)
	assert.Equal(t, "alice", tasks[0].Variables["reviewer"])
	assert.Equal(t, deployed[0].Id, process.DefinitionId)
	status, body = api.call(t, http.MethodGet, "/v1/processes/"+process.Id, "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	execution := decode[runtime.ProcessExecution](t, body)
	assert.Equal(t, runtime.ProcessCompleted, execution.Process.State)

	status, body = api.call(t, http.MethodGet, "/v1/processes/"+process.Id+"/variables", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	variables := decode[map[string]any](t, body)
	assert.Equal(t, true, variables["approved"])
}

func TestDeployingTheSameDefinitionTwiceKeepsOneVersion(t *testing.T) {
	// setup
	api := newTestApi(t)

	// when
	status, _ := api.call(t, http.MethodPost, "/v1/definitions", "text/plain", []byte(reviewProcess))
	require.Equal(t, http.StatusCreated, status)
	status, _ = api.call(t, http.MethodPost, "/v1/definitions", "text/plain", []byte(reviewProcess))
	require.Equal(t, http.StatusCreated, status)

	// then
	status, body := api.call(t, http.MethodGet, "/v1/definitions?limit=10", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	definitions := decode[[]model.ProcessDefinition](t, body)
	require.Len(t, definitions, 1)
	assert.Equal(t, 1, definitions[0].Version)

	status, body = api.call(t, http.MethodGet, "/v1/definitions/"+definitions[0].Id, "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "RestReviewProcess", decode[model.ProcessDefinition](t, body).Key)
}

func TestSuspendedDefinitionRejectsStartWithConflict(t *testing.T) {
	// setup
	api := newTestApi(t)
	status, _ := api.call(t, http.MethodPost, "/v1/definitions", "text/plain", []byte(reviewProcess))
	require.Equal(t, http.StatusCreated, status)

	// given
	status, body := api.callJson(t, http.MethodPost, "/v1/definitions/suspend", map[string]any{"key": "RestReviewProcess"})
	require.Equal(t, http.StatusNoContent, status, string(body))

	// when
	status, body = api.callJson(t, http.MethodPost, "/v1/processes", map[string]any{"key": "RestReviewProcess"})

	// then
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeConflict, decode[ApiError](t, body).Code)

	status, _ = api.callJson(t, http.MethodPost, "/v1/definitions/resume", map[string]any{"key": "RestReviewProcess"})
	require.Equal(t, http.StatusNoContent, status)
	status, body = api.callJson(t, http.MethodPost, "/v1/processes", map[string]any{"key": "RestReviewProcess"})
	assert.Equal(t, http.StatusCreated, status, string(body))
}

func TestUnknownResourcesAnswerNotFound(t *testing.T) {
	// setup
	api := newTestApi(t)

	// when
	startStatus, startBody := api.callJson(t, http.MethodPost, "/v1/processes", map[string]any{"key": "MissingProcess"})
	processStatus, _ := api.call(t, http.MethodGet, "/v1/processes/missing", "", nil)
	variablesStatus, _ := api.call(t, http.MethodGet, "/v1/processes/missing/variables", "", nil)
	completeStatus, _ := api.callJson(t, http.MethodPost, "/v1/external-tasks/missing/complete", nil)
	jobStatus, _ := api.call(t, http.MethodGet, "/v1/admin/jobs/missing", "", nil)
	messageStatus, _ := api.callJson(t, http.MethodPost, "/v1/messages", map[string]any{"message": "nobody-waits"})

	// then
	assert.Equal(t, http.StatusNotFound, startStatus)
	assert.Equal(t, CodeNotFound, decode[ApiError](t, startBody).Code)
	assert.Equal(t, http.StatusNotFound, processStatus)
	assert.Equal(t, http.StatusNotFound, variablesStatus)
	assert.Equal(t, http.StatusNotFound, completeStatus)
	assert.Equal(t, http.StatusNotFound, jobStatus)
	assert.Equal(t, http.StatusNotFound, messageStatus)
}

func TestInvalidRequestsAreRejected(t *testing.T) {
	// setup
	api := newTestApi(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "poll without topic", method: http.MethodPost, path: "/v1/external-tasks/poll", body: map[string]any{}},
		{name: "start without key or definition", method: http.MethodPost, path: "/v1/processes", body: map[string]any{"businessKey": "BK"}},
		{name: "start with key and definition", method: http.MethodPost, path: "/v1/processes", body: map[string]any{"key": "A", "definitionId": "B"}},
		{name: "negative limit", method: http.MethodGet, path: "/v1/processes?limit=-1"},
		{name: "fail without reason", method: http.MethodPost, path: "/v1/activities/any/fail", body: map[string]any{"trace": "stack"}},
		{name: "unknown job type", method: http.MethodPost, path: "/v1/admin/jobs", body: map[string]any{"type": "REINDEX"}},
		{name: "suspend without reference", method: http.MethodPost, path: "/v1/definitions/suspend", body: map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// when
			status, body := api.callJson(t, tt.method, tt.path, tt.body)

			// then
			assert.Equal(t, http.StatusBadRequest, status, string(body))
			assert.Equal(t, CodeBadRequest, decode[ApiError](t, body).Code)
		})
	}
}

func TestAdminJobsAreRecorded(t *testing.T) {
	// setup
	api := newTestApi(t)

	// when
	status, body := api.callJson(t, http.MethodPost, "/v1/admin/jobs", map[string]any{"type": bpmn.JobTypeCompaction})
	require.Equal(t, http.StatusOK, status, string(body))
	job := decode[runtime.Job](t, body)

	// then
	assert.Equal(t, bpmn.JobTypeCompaction, job.Type)
	status, body = api.call(t, http.MethodGet, "/v1/admin/jobs/"+job.Id, "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, job.Id, decode[runtime.Job](t, body).Id)

	status, body = api.call(t, http.MethodGet, "/v1/admin/jobs", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.NotEmpty(t, decode[[]runtime.Job](t, body))
}

func TestStatusReportsEngine(t *testing.T) {
	// setup
	api := newTestApi(t)

	// when
	status, body := api.call(t, http.MethodGet, "/system/status", "", nil)

	// then
	require.Equal(t, http.StatusOK, status)
	res := decode[Status](t, body)
	assert.Equal(t, "rest-test", res.Name)
	assert.Equal(t, "UP", res.Status)
	assert.Equal(t, config.StorageMemory, res.Storage)
}
