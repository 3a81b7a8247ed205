package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

type shedlock struct {
	until time.Time
	owner string
}

// Storage keeps process information in memory,
// please use NewStorage to create a new object of this type.
type Storage struct {
	mu sync.RWMutex

	seq         int64
	Definitions map[string]model.ProcessDefinition
	Processes   map[string]runtime.Process
	Activities  map[string]runtime.ActivityExecution
	Variables   map[string]runtime.Variable
	History     map[string]runtime.ProcessExecution
	Jobs        map[string]runtime.Job

	activitySeq map[string]int64
	variableSeq map[string]int64
	queue       []storage.QueueItem
	joins       map[string]int
	locks       map[string]shedlock
}

func NewStorage() *Storage {
	return &Storage{
		Definitions: make(map[string]model.ProcessDefinition),
		Processes:   make(map[string]runtime.Process),
		Activities:  make(map[string]runtime.ActivityExecution),
		Variables:   make(map[string]runtime.Variable),
		History:     make(map[string]runtime.ProcessExecution),
		Jobs:        make(map[string]runtime.Job),
		activitySeq: make(map[string]int64),
		variableSeq: make(map[string]int64),
		queue:       make([]storage.QueueItem, 0),
		joins:       make(map[string]int),
		locks:       make(map[string]shedlock),
	}
}

var _ storage.Storage = &Storage{}

func (mem *Storage) GenerateId() string {
	return uuid.NewString()
}

func (mem *Storage) nextSeq() int64 {
	mem.seq++
	return mem.seq
}

func paginate[T any](items []T, page storage.Page) []T {
	if page.Offset >= len(items) {
		return make([]T, 0)
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

var _ storage.DefinitionStorage = &Storage{}

func (mem *Storage) SaveDefinitions(ctx context.Context, definitions []model.ProcessDefinition) ([]model.ProcessDefinition, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()

	res := make([]model.ProcessDefinition, 0, len(definitions))
	for _, definition := range definitions {
		latest, found := mem.latestDefinition(definition.Key)
		if found && latest.Metadata.Schema != "" && latest.Metadata.Schema == definition.Metadata.Schema {
			res = append(res, latest)
			continue
		}
		definition.Id = mem.GenerateId()
		definition.Version = 1
		if found {
			definition.Version = latest.Version + 1
		}
		now := time.Now()
		definition.CreatedAt = now
		definition.UpdatedAt = now
		definition.Index()
		mem.Definitions[definition.Id] = definition
		res = append(res, definition)
	}
	return res, nil
}

func (mem *Storage) latestDefinition(key string) (model.ProcessDefinition, bool) {
	var res model.ProcessDefinition
	found := false
	for _, def := range mem.Definitions {
		if def.Key != key {
			continue
		}
		if found && def.Version < res.Version {
			continue
		}
		found = true
		res = def
	}
	return res, found
}

func (mem *Storage) FindDefinitionById(ctx context.Context, id string) (model.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.Definitions[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindLatestDefinitionByKey(ctx context.Context, key string) (model.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, found := mem.latestDefinition(key)
	if !found {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindDefinitionByKeyAndVersion(ctx context.Context, key string, version int) (model.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, def := range mem.Definitions {
		if def.Key == key && def.Version == version {
			return def, nil
		}
	}
	return model.ProcessDefinition{}, storage.ErrNotFound
}

func (mem *Storage) FindAllDefinitions(ctx context.Context, page storage.Page) ([]model.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := slices.Collect(maps.Values(mem.Definitions))
	slices.SortFunc(res, func(a, b model.ProcessDefinition) int {
		return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.Version, b.Version))
	})
	return paginate(res, page), nil
}

func (mem *Storage) SetDefinitionSuspendedById(ctx context.Context, id string, suspended bool) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	def, ok := mem.Definitions[id]
	if !ok {
		return storage.ErrNotFound
	}
	def.Suspended = suspended
	def.UpdatedAt = time.Now()
	mem.Definitions[id] = def
	return nil
}

func (mem *Storage) SetDefinitionSuspendedByKey(ctx context.Context, key string, suspended bool) (int, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	changed := 0
	for id, def := range mem.Definitions {
		if def.Key != key {
			continue
		}
		def.Suspended = suspended
		def.UpdatedAt = time.Now()
		mem.Definitions[id] = def
		changed++
	}
	return changed, nil
}

var _ storage.ProcessStorage = &Storage{}

func (mem *Storage) SaveProcess(ctx context.Context, process runtime.Process) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	process.Definition = nil
	mem.Processes[process.Id] = process
	return nil
}

func (mem *Storage) UpdateProcessState(ctx context.Context, id string, state runtime.ProcessState) (runtime.Process, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	process, ok := mem.Processes[id]
	if !ok {
		return process, storage.ErrNotFound
	}
	now := time.Now()
	process.State = state
	process.UpdatedAt = now
	if state.IsTerminal() {
		process.CompletedAt = &now
	}
	mem.Processes[id] = process
	return process, nil
}

func (mem *Storage) FindProcessById(ctx context.Context, id string) (runtime.Process, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.Processes[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessExecutionById(ctx context.Context, id string) (runtime.ProcessExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	process, ok := mem.Processes[id]
	if !ok {
		return runtime.ProcessExecution{}, storage.ErrNotFound
	}
	return mem.processExecution(process), nil
}

func (mem *Storage) processExecution(process runtime.Process) runtime.ProcessExecution {
	return runtime.ProcessExecution{
		Process:    process,
		Activities: mem.activitiesWhere(func(a runtime.ActivityExecution) bool { return a.ProcessId == process.Id }),
		Variables:  mem.variablesWhere(func(v runtime.Variable) bool { return v.ProcessId == process.Id }),
	}
}

func (mem *Storage) FindProcessesByBusinessKey(ctx context.Context, businessKey string) ([]runtime.Process, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.processesWhere(func(p runtime.Process) bool { return p.BusinessKey == businessKey }), nil
}

func (mem *Storage) FindProcessesByVariables(ctx context.Context, variables map[string]any) ([]runtime.Process, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	match, err := mem.variablesMatcher(variables)
	if err != nil {
		return nil, err
	}
	return mem.processesWhere(match), nil
}

func (mem *Storage) FindProcessesByBusinessKeyAndVariables(ctx context.Context, businessKey string, variables map[string]any) ([]runtime.Process, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	match, err := mem.variablesMatcher(variables)
	if err != nil {
		return nil, err
	}
	return mem.processesWhere(func(p runtime.Process) bool {
		return p.BusinessKey == businessKey && match(p)
	}), nil
}

func (mem *Storage) variablesMatcher(variables map[string]any) (func(p runtime.Process) bool, error) {
	expected := make(map[string]string, len(variables))
	for key, value := range variables {
		v, err := runtime.NewVariable(key, value)
		if err != nil {
			return nil, err
		}
		expected[key] = v.Value
	}
	return func(p runtime.Process) bool {
		matched := 0
		for _, v := range mem.Variables {
			if v.ProcessId != p.Id || v.ExecutionId != "" {
				continue
			}
			if value, ok := expected[v.Key]; ok && value == v.Value {
				matched++
			}
		}
		return matched == len(expected)
	}, nil
}

func (mem *Storage) processesWhere(predicate func(p runtime.Process) bool) []runtime.Process {
	res := make([]runtime.Process, 0)
	for _, p := range mem.Processes {
		if predicate(p) {
			res = append(res, p)
		}
	}
	slices.SortFunc(res, func(a, b runtime.Process) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Id, b.Id))
	})
	return res
}

func (mem *Storage) FindAllFullyCompleted(ctx context.Context, limit int) ([]runtime.ProcessExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessExecution, 0)
	roots := mem.processesWhere(func(p runtime.Process) bool { return p.IsRootProcess() && p.IsInTerminalState() })
	taken := 0
	for _, root := range roots {
		if limit > 0 && taken >= limit {
			break
		}
		tree := mem.processesWhere(func(p runtime.Process) bool { return p.RootProcessId == root.Id })
		if slices.ContainsFunc(tree, func(p runtime.Process) bool { return !p.IsInTerminalState() }) {
			continue
		}
		if !slices.ContainsFunc(tree, func(p runtime.Process) bool { return p.Id == root.Id }) {
			tree = append(tree, root)
		}
		for _, p := range tree {
			res = append(res, mem.processExecution(p))
		}
		taken++
	}
	return res, nil
}

func (mem *Storage) FindAllProcesses(ctx context.Context, page storage.Page) ([]runtime.Process, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return paginate(mem.processesWhere(func(p runtime.Process) bool { return true }), page), nil
}

func (mem *Storage) DeleteProcess(ctx context.Context, id string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if _, ok := mem.Processes[id]; !ok {
		return storage.ErrNotFound
	}
	mem.deleteProcess(id)
	return nil
}

func (mem *Storage) deleteProcess(id string) {
	delete(mem.Processes, id)
	for activityId, a := range mem.Activities {
		if a.ProcessId != id {
			continue
		}
		delete(mem.Activities, activityId)
		delete(mem.activitySeq, activityId)
		mem.removeFromQueue(activityId)
	}
	for key, v := range mem.Variables {
		if v.ProcessId == id {
			delete(mem.Variables, key)
			delete(mem.variableSeq, key)
		}
	}
	for key := range mem.joins {
		if strings.HasPrefix(key, id+"/") {
			delete(mem.joins, key)
		}
	}
}

var _ storage.ActivityStorage = &Storage{}

func (mem *Storage) SaveActivity(ctx context.Context, activity runtime.ActivityExecution) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	activity.Process = nil
	activity.Definition = nil
	activity.Variables = maps.Clone(activity.Variables)
	if _, ok := mem.activitySeq[activity.Id]; !ok {
		mem.activitySeq[activity.Id] = mem.nextSeq()
	}
	mem.Activities[activity.Id] = activity
	return nil
}

func (mem *Storage) FindActivityById(ctx context.Context, id string) (runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.Activities[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindActivityByDefinitionId(ctx context.Context, processId string, definitionId string) (runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	candidates := mem.activitiesWhere(func(a runtime.ActivityExecution) bool {
		return a.ProcessId == processId && a.DefinitionId == definitionId
	})
	if len(candidates) == 0 {
		return runtime.ActivityExecution{}, storage.ErrNotFound
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if !candidates[i].IsInTerminalState() {
			return candidates[i], nil
		}
	}
	return candidates[len(candidates)-1], nil
}

func (mem *Storage) FindActivitiesByIds(ctx context.Context, ids []string) ([]runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.activitiesWhere(func(a runtime.ActivityExecution) bool { return slices.Contains(ids, a.Id) }), nil
}

func (mem *Storage) FindActivitiesByProcessId(ctx context.Context, processId string) ([]runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.activitiesWhere(func(a runtime.ActivityExecution) bool { return a.ProcessId == processId }), nil
}

func (mem *Storage) FindActiveActivities(ctx context.Context, processId string, definitionIds ...string) ([]runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.activitiesWhere(func(a runtime.ActivityExecution) bool {
		return a.ProcessId == processId && isActive(a.State) &&
			(len(definitionIds) == 0 || slices.Contains(definitionIds, a.DefinitionId))
	}), nil
}

func (mem *Storage) FindTimedOut(ctx context.Context, now time.Time, limit int) ([]runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := mem.activitiesWhere(func(a runtime.ActivityExecution) bool {
		return isActive(a.State) && a.Timeout != nil && a.Timeout.Before(now)
	})
	slices.SortStableFunc(res, func(a, b runtime.ActivityExecution) int {
		return a.Timeout.Compare(*b.Timeout)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (mem *Storage) FindFailed(ctx context.Context, processId string) ([]runtime.ActivityExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.activitiesWhere(func(a runtime.ActivityExecution) bool {
		return a.ProcessId == processId && a.State == runtime.ActivityFailed
	}), nil
}

func (mem *Storage) IsAnyFailed(ctx context.Context, processId string) (bool, error) {
	failed, err := mem.FindFailed(ctx, processId)
	return len(failed) > 0, err
}

func (mem *Storage) IsAllCompleted(ctx context.Context, processId string, definitionIds ...string) (bool, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	pending := mem.activitiesWhere(func(a runtime.ActivityExecution) bool {
		return a.ProcessId == processId && (isActive(a.State) || a.State == runtime.ActivityFailed) &&
			(len(definitionIds) == 0 || slices.Contains(definitionIds, a.DefinitionId))
	})
	return len(pending) == 0, nil
}

func (mem *Storage) ChangeActivityState(ctx context.Context, id string, state runtime.ActivityState) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	activity, ok := mem.Activities[id]
	if !ok {
		return storage.ErrNotFound
	}
	activity.State = state
	if state.IsTerminal() {
		now := time.Now()
		activity.CompletedAt = &now
	}
	mem.Activities[id] = activity
	return nil
}

func (mem *Storage) DeleteActivity(ctx context.Context, id string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if _, ok := mem.Activities[id]; !ok {
		return storage.ErrNotFound
	}
	delete(mem.Activities, id)
	delete(mem.activitySeq, id)
	mem.removeFromQueue(id)
	return nil
}

func (mem *Storage) DeleteAllActive(ctx context.Context, processId string, definitionIds []string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	for id, a := range mem.Activities {
		if a.ProcessId != processId || !isActive(a.State) || !slices.Contains(definitionIds, a.DefinitionId) {
			continue
		}
		delete(mem.Activities, id)
		delete(mem.activitySeq, id)
		mem.removeFromQueue(id)
	}
	return nil
}

func (mem *Storage) JoinArrive(ctx context.Context, processId string, definitionId string, expected int) (bool, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	key := processId + "/" + definitionId
	mem.joins[key]++
	if mem.joins[key] < expected {
		return false, nil
	}
	delete(mem.joins, key)
	return true, nil
}

func (mem *Storage) Poll(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]runtime.ActivityExecution, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	claimed := mem.activitiesWhere(func(a runtime.ActivityExecution) bool {
		return a.State == runtime.ActivityScheduled && a.Topic == topic &&
			(processDefinitionKey == "" || a.DefinitionKey == processDefinitionKey)
	})
	if limit > 0 && len(claimed) > limit {
		claimed = claimed[:limit]
	}
	now := time.Now()
	for i := range claimed {
		claimed[i].State = runtime.ActivityActive
		claimed[i].StartedAt = &now
		mem.Activities[claimed[i].Id] = claimed[i]
		mem.removeFromQueue(claimed[i].Id)
	}
	return claimed, nil
}

func (mem *Storage) activitiesWhere(predicate func(a runtime.ActivityExecution) bool) []runtime.ActivityExecution {
	res := make([]runtime.ActivityExecution, 0)
	for _, a := range mem.Activities {
		if predicate(a) {
			a.Variables = maps.Clone(a.Variables)
			res = append(res, a)
		}
	}
	slices.SortFunc(res, func(a, b runtime.ActivityExecution) int {
		return cmp.Compare(mem.activitySeq[a.Id], mem.activitySeq[b.Id])
	})
	return res
}

func isActive(state runtime.ActivityState) bool {
	return state == runtime.ActivityScheduled || state == runtime.ActivityActive
}

var _ storage.QueueStorage = &Storage{}

func (mem *Storage) PushQueue(ctx context.Context, item storage.QueueItem) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	mem.removeFromQueue(item.ActivityId)
	mem.queue = append(mem.queue, item)
	return nil
}

func (mem *Storage) PollQueue(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]string, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	res := make([]string, 0)
	rest := make([]storage.QueueItem, 0, len(mem.queue))
	for _, item := range mem.queue {
		matches := item.Topic == topic && (processDefinitionKey == "" || item.ProcessDefinitionKey == processDefinitionKey)
		if matches && (limit <= 0 || len(res) < limit) {
			res = append(res, item.ActivityId)
			continue
		}
		rest = append(rest, item)
	}
	mem.queue = rest
	return res, nil
}

func (mem *Storage) RemoveFromQueue(ctx context.Context, activityId string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.removeFromQueue(activityId)
	return nil
}

func (mem *Storage) removeFromQueue(activityId string) {
	mem.queue = slices.DeleteFunc(mem.queue, func(item storage.QueueItem) bool {
		return item.ActivityId == activityId
	})
}

var _ storage.VariableStorage = &Storage{}

func variableKey(v runtime.Variable) string {
	return fmt.Sprintf("%s/%s/%s", v.ProcessId, v.ExecutionId, v.Key)
}

func (mem *Storage) SaveVariables(ctx context.Context, variables []runtime.Variable) ([]runtime.Variable, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	res := make([]runtime.Variable, 0, len(variables))
	now := time.Now()
	for _, v := range variables {
		key := variableKey(v)
		if existing, ok := mem.Variables[key]; ok {
			v.Id = existing.Id
			v.CreatedAt = existing.CreatedAt
		} else {
			if v.Id == "" {
				v.Id = mem.GenerateId()
			}
			v.CreatedAt = now
		}
		v.UpdatedAt = now
		mem.Variables[key] = v
		mem.variableSeq[key] = mem.nextSeq()
		res = append(res, v)
	}
	return res, nil
}

func (mem *Storage) FindVariablesInScope(ctx context.Context, processId string, executionDefinitionIds []string) ([]runtime.Variable, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.variablesWhere(func(v runtime.Variable) bool {
		return v.ProcessId == processId && (v.ExecutionId == "" || slices.Contains(executionDefinitionIds, v.ExecutionDefinitionId))
	}), nil
}

func (mem *Storage) FindVariablesInProcess(ctx context.Context, processId string) ([]runtime.Variable, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return mem.variablesWhere(func(v runtime.Variable) bool { return v.ProcessId == processId }), nil
}

func (mem *Storage) variablesWhere(predicate func(v runtime.Variable) bool) []runtime.Variable {
	keys := make([]string, 0)
	for key, v := range mem.Variables {
		if predicate(v) {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Compare(mem.variableSeq[a], mem.variableSeq[b])
	})
	res := make([]runtime.Variable, 0, len(keys))
	for _, key := range keys {
		res = append(res, mem.Variables[key])
	}
	return res
}

var _ storage.HistoryStorage = &Storage{}

func (mem *Storage) SaveHistory(ctx context.Context, executions []runtime.ProcessExecution) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	for _, execution := range executions {
		mem.History[execution.Process.Id] = execution
		mem.deleteProcess(execution.Process.Id)
	}
	return nil
}

func (mem *Storage) FindHistory(ctx context.Context, processId string) (runtime.ProcessExecution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.History[processId]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

var _ storage.JobStorage = &Storage{}

func (mem *Storage) SaveJob(ctx context.Context, job runtime.Job) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.Jobs[job.Id] = job
	return nil
}

func (mem *Storage) FindJobById(ctx context.Context, id string) (runtime.Job, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.Jobs[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindJobs(ctx context.Context, page storage.Page) ([]runtime.Job, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := slices.Collect(maps.Values(mem.Jobs))
	slices.SortFunc(res, func(a, b runtime.Job) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Id, b.Id))
	})
	return paginate(res, page), nil
}

var _ storage.ShedlockStorage = &Storage{}

func (mem *Storage) TryAcquireLock(ctx context.Context, name string, until time.Time, owner string) (bool, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if lock, ok := mem.locks[name]; ok && lock.owner != owner && lock.until.After(time.Now()) {
		return false, nil
	}
	mem.locks[name] = shedlock{until: until, owner: owner}
	return true, nil
}

func (mem *Storage) ReleaseLock(ctx context.Context, name string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	delete(mem.locks, name)
	return nil
}
