package bpmn

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	bpmnotel "github.com/pbinitiative/zenorchestrator/pkg/otel"
	"github.com/pbinitiative/zenorchestrator/pkg/script"
	"github.com/pbinitiative/zenorchestrator/pkg/script/feel"
	"github.com/pbinitiative/zenorchestrator/pkg/script/js"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/pbinitiative/zenorchestrator/pkg/storage/inmemory"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Engine struct {
	name        string
	config      Config
	persistence storage.Storage
	executor    *TaskExecutor
	dispatcher  *Dispatcher
	behaviors   behaviorTable
	resolver    *HandlerResolver
	definitions *expirable.LRU[string, *model.ProcessDefinition]
	feel        script.FeelRuntime
	js          script.JsRuntime
	snowflake   *snowflake.Node
	metrics     *bpmnotel.EngineMetrics
	tracer      trace.Tracer
	logger      hclog.Logger
	scheduler   *scheduler
	cancel      context.CancelFunc
}

type EngineOption = func(*Engine)

// NewEngine creates a new instance of the engine. Without EngineWithStorage the
// state is kept in memory.
func NewEngine(options ...EngineOption) *Engine {
	engine := &Engine{
		name:   fmt.Sprintf("engine-%s", uuid.NewString()),
		config: DefaultConfig(),
		logger: hclog.Default().Named("engine"),
	}
	for _, option := range options {
		option(engine)
	}
	if engine.persistence == nil {
		engine.persistence = inmemory.NewStorage()
	}

	metrics, err := bpmnotel.NewMetrics(otel.Meter("zenorchestrator-engine"))
	if err != nil {
		engine.logger.Error("failed to create engine metrics", "err", err)
	}
	engine.metrics = metrics
	engine.tracer = otel.Tracer("zenorchestrator-engine")
	engine.snowflake = newSnowflakeNode(engine.name)

	ctx, cancel := context.WithCancel(context.Background())
	engine.cancel = cancel
	engine.js = js.NewJsRuntime(ctx, engine.config.JsPoolMax, engine.config.JsPoolMin)
	engine.feel = feel.NewFeelRuntime()

	engine.executor = NewTaskExecutor(engine.config.Workers, engine.config.QueueSize)
	engine.dispatcher = NewDispatcher(engine.executor, engine.snowflake, engine.tracer, engine.metrics, engine.logger.Named("dispatcher"))
	engine.definitions = expirable.NewLRU[string, *model.ProcessDefinition](engine.config.DefinitionCacheSize, nil, engine.config.DefinitionCacheTTL)
	engine.behaviors = newBehaviorTable(engine)
	engine.resolver = &HandlerResolver{}
	engine.registerHandlers()
	engine.scheduler = newScheduler(engine)
	return engine
}

func EngineWithStorage(persistence storage.Storage) EngineOption {
	return func(engine *Engine) {
		engine.persistence = persistence
	}
}

func EngineWithName(name string) EngineOption {
	return func(engine *Engine) {
		engine.name = name
	}
}

func EngineWithConfig(config Config) EngineOption {
	return func(engine *Engine) {
		engine.config = config
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// Name returns the name of the engine, only useful in case you control multiple ones
func (engine *Engine) Name() string {
	return engine.name
}

func (engine *Engine) Dispatcher() *Dispatcher {
	return engine.dispatcher
}

func (engine *Engine) Storage() storage.Storage {
	return engine.persistence
}

// Start launches the recurring jobs.
func (engine *Engine) Start() {
	engine.scheduler.start()
}

// Stop stops the recurring jobs and waits for running commands.
func (engine *Engine) Stop() {
	engine.scheduler.stop()
	engine.executor.Stop()
	engine.cancel()
}

// Idle waits until no asynchronous command is queued or running.
func (engine *Engine) Idle(ctx context.Context) error {
	return engine.executor.Idle(ctx)
}

func (engine *Engine) dispatch(ctx context.Context, cmd any) error {
	return engine.dispatcher.Dispatch(ctx, cmd)
}

func (engine *Engine) dispatchAsync(ctx context.Context, cmd any) *Future {
	return engine.dispatcher.DispatchAsync(ctx, cmd)
}

func (engine *Engine) registerHandlers() {
	d := engine.dispatcher

	Register(d, engine.handleRunActivity)
	Register(d, engine.handleCompleteActivity)
	Register(d, engine.handleFailActivity)
	Register(d, engine.handleFailTimedOutActivities)
	Register(d, engine.handleRetryActivity)
	Register(d, engine.handleRetryActivities)
	Register(d, engine.handleCancelActivity)
	Register(d, engine.handleCancelActivities)
	Register(d, engine.handleCancelAllActivities)
	Register(d, engine.handleTerminateActivity)
	Register(d, engine.handleTerminateActivities)
	Register(d, engine.handleTerminateAllActivities)
	Register(d, engine.handleTriggerActivity)
	Register(d, engine.handleDeleteActivity)
	Register(d, engine.handleActivityCompletion)

	RegisterQuery(d, engine.handleStartProcess)
	Register(d, engine.handleRunProcess)
	Register(d, engine.handleCompleteProcess)
	Register(d, engine.handleIncidentProcess)
	Register(d, engine.handleResolveProcessIncident)
	Register(d, engine.handleTerminateProcess)
	Register(d, engine.handleCancelProcess)
	Register(d, engine.handleDeleteProcess)
	Register(d, engine.handleSuspendDefinition)

	RegisterQuery(d, engine.handleCorrelateMessage)
	Register(d, engine.handleCorrelateError)
	Register(d, engine.handleCorrelateConditions)

	Register(d, engine.handleSetVariables)
	RegisterQuery(d, engine.handlePollExternalTasks)
	RegisterQuery(d, engine.handleCompactHistory)
}
