package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type EngineMetrics struct {
	ProcessesStarted    metric.Int64Counter
	ProcessesEnded      metric.Int64Counter
	ProcessesRunning    metric.Int64UpDownCounter
	ActivitiesCompleted metric.Int64Counter
	ActivitiesFailed    metric.Int64Counter
	IncidentsRaised     metric.Int64Counter
	ExternalTasksPolled metric.Int64Counter
	CommandsDispatched  metric.Int64Counter
	CommandsFailed      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*EngineMetrics, error) {
	var errJoin error

	processesStartedTotal, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of processes started"))
	errJoin = errors.Join(errJoin, err)

	processesCompletedTotal, err := meter.Int64Counter("processes_completed", metric.WithDescription("Number of processes that reached a terminal state"))
	errJoin = errors.Join(errJoin, err)

	processesRunning, err := meter.Int64UpDownCounter("processes_running", metric.WithDescription("Number of processes currently running"))
	errJoin = errors.Join(errJoin, err)

	activitiesCompleted, err := meter.Int64Counter("activities_completed", metric.WithDescription("Number of activities completed"))
	errJoin = errors.Join(errJoin, err)

	activitiesFailed, err := meter.Int64Counter("activities_failed", metric.WithDescription("Number of activity failures"))
	errJoin = errors.Join(errJoin, err)

	incidentsRaised, err := meter.Int64Counter("incidents_raised", metric.WithDescription("Number of process incidents raised"))
	errJoin = errors.Join(errJoin, err)

	externalTasksPolled, err := meter.Int64Counter("external_tasks_polled", metric.WithDescription("Number of external tasks handed to workers"))
	errJoin = errors.Join(errJoin, err)

	commandsDispatched, err := meter.Int64Counter("commands_dispatched", metric.WithDescription("Number of engine commands dispatched"))
	errJoin = errors.Join(errJoin, err)

	commandsFailed, err := meter.Int64Counter("commands_failed", metric.WithDescription("Number of asynchronous engine commands that failed"))
	errJoin = errors.Join(errJoin, err)

	metrics := EngineMetrics{
		ProcessesStarted:    processesStartedTotal,
		ProcessesEnded:      processesCompletedTotal,
		ProcessesRunning:    processesRunning,
		ActivitiesCompleted: activitiesCompleted,
		ActivitiesFailed:    activitiesFailed,
		IncidentsRaised:     incidentsRaised,
		ExternalTasksPolled: externalTasksPolled,
		CommandsDispatched:  commandsDispatched,
		CommandsFailed:      commandsFailed,
	}
	return &metrics, errJoin
}
