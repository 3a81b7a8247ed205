package bpmn

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenorchestrator/internal/appcontext"
	bpmnotel "github.com/pbinitiative/zenorchestrator/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type commandHandler func(ctx context.Context, cmd any) (any, error)

// Dispatcher routes every command to exactly one handler registered for its concrete type.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[reflect.Type]commandHandler
	executor  *TaskExecutor
	snowflake *snowflake.Node
	tracer    trace.Tracer
	metrics   *bpmnotel.EngineMetrics
	observer  func(cmd any)
	logger    hclog.Logger
}

func NewDispatcher(executor *TaskExecutor, node *snowflake.Node, tracer trace.Tracer, metrics *bpmnotel.EngineMetrics, logger hclog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers:  make(map[reflect.Type]commandHandler),
		executor:  executor,
		snowflake: node,
		tracer:    tracer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Observe installs a function called with every dispatched command before its handler runs.
func (d *Dispatcher) Observe(observer func(cmd any)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = observer
}

func (d *Dispatcher) register(t reflect.Type, handler commandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[t]; ok {
		panic(fmt.Sprintf("handler for command %s is already registered", t))
	}
	d.handlers[t] = handler
}

// Register binds handler to the command type C. Registering a type twice panics.
func Register[C any](d *Dispatcher, handler func(ctx context.Context, cmd C) error) {
	d.register(reflect.TypeFor[C](), func(ctx context.Context, cmd any) (any, error) {
		return nil, handler(ctx, cmd.(C))
	})
}

// RegisterQuery binds a handler producing a result to the command type C.
func RegisterQuery[C any, R any](d *Dispatcher, handler func(ctx context.Context, cmd C) (R, error)) {
	d.register(reflect.TypeFor[C](), func(ctx context.Context, cmd any) (any, error) {
		return handler(ctx, cmd.(C))
	})
}

// Dispatch runs the handler of cmd on the calling goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd any) error {
	_, err := d.Execute(ctx, cmd)
	return err
}

// Execute runs the handler of cmd and returns its result.
func (d *Dispatcher) Execute(ctx context.Context, cmd any) (any, error) {
	t := reflect.TypeOf(cmd)
	d.mu.RLock()
	handler, ok := d.handlers[t]
	observer := d.observer
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrHandlerNotFound, t)
	}
	if observer != nil {
		observer(cmd)
	}

	ctx = appcontext.WithExecutionKey(ctx, d.snowflake.Generate().Int64())
	name := t.Name()
	ctx, span := d.tracer.Start(ctx, name, trace.WithAttributes(attribute.String(bpmnotel.AttributeCommand, name)))
	defer span.End()
	d.metrics.CommandsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String(bpmnotel.AttributeCommand, name)))

	res, err := handler(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// DispatchAsync hands cmd to the task executor and returns immediately.
// The handler context keeps the values of ctx but not its cancellation.
func (d *Dispatcher) DispatchAsync(ctx context.Context, cmd any) *Future {
	detached := context.WithoutCancel(ctx)
	return d.executor.Submit(detached, func(ctx context.Context) error {
		err := d.Dispatch(ctx, cmd)
		if err != nil {
			d.metrics.CommandsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String(bpmnotel.AttributeCommand, reflect.TypeOf(cmd).Name())))
			d.logger.Error("async command failed", "command", reflect.TypeOf(cmd).Name(), "err", err)
		}
		return err
	})
}

// Execute is the typed variant of Dispatcher.Execute.
func Execute[R any](ctx context.Context, d *Dispatcher, cmd any) (R, error) {
	var zero R
	res, err := d.Execute(ctx, cmd)
	if err != nil || res == nil {
		return zero, err
	}
	typed, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("command %T returned %T", cmd, res)
	}
	return typed, nil
}
