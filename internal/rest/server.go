package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pbinitiative/zenorchestrator/internal/config"
	"github.com/pbinitiative/zenorchestrator/internal/log"
	otelint "github.com/pbinitiative/zenorchestrator/internal/otel"
	"github.com/pbinitiative/zenorchestrator/internal/rest/middleware"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of the orchestration engine the REST API exposes.
type Engine interface {
	Name() string
	DeployYaml(ctx context.Context, data []byte, deployment string) ([]model.ProcessDefinition, error)
	GetDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error)
	FindDefinitions(ctx context.Context, page storage.Page) ([]model.ProcessDefinition, error)
	SuspendDefinition(ctx context.Context, id string, key string) error
	ResumeDefinition(ctx context.Context, id string, key string) error

	StartProcessByKey(ctx context.Context, key string, businessKey string, variables map[string]any) (*runtime.Process, error)
	StartProcessByKeyAndVersion(ctx context.Context, key string, version int, businessKey string, variables map[string]any) (*runtime.Process, error)
	StartProcessByDefinitionId(ctx context.Context, definitionId string, businessKey string, variables map[string]any) (*runtime.Process, error)
	GetProcess(ctx context.Context, id string) (runtime.ProcessExecution, error)
	FindProcesses(ctx context.Context, page storage.Page) ([]runtime.Process, error)
	TerminateProcess(ctx context.Context, id string) error
	CancelProcess(ctx context.Context, id string) error
	DeleteProcess(ctx context.Context, id string) error
	ProcessVariables(ctx context.Context, processId string) (map[string]any, error)
	SetVariables(ctx context.Context, processId string, variables map[string]any) error

	CompleteActivity(ctx context.Context, id string, variables map[string]any) error
	FailActivity(ctx context.Context, id string, failure *runtime.ActivityFailure, variables map[string]any) error
	RetryActivity(ctx context.Context, id string) error
	TerminateActivity(ctx context.Context, id string, withoutInterruption bool) error
	SetActivityVariablesById(ctx context.Context, activityId string, variables map[string]any, local bool) error

	PollExternalTasks(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]bpmn.ExternalTask, error)
	CompleteExternalTask(ctx context.Context, id string, variables map[string]any) error
	FailExternalTask(ctx context.Context, id string, failure *runtime.ActivityFailure, variables map[string]any) error

	CorrelateMessage(ctx context.Context, message string, businessKey string, correlationKeys map[string]any, variables map[string]any) (*runtime.Process, error)

	CompactHistory(ctx context.Context, limit int) (runtime.Job, error)
	RunJob(ctx context.Context, jobType string) (runtime.Job, error)
	GetJob(ctx context.Context, id string) (runtime.Job, error)
	FindJobs(ctx context.Context, page storage.Page) ([]runtime.Job, error)
}

var _ Engine = (*bpmn.Engine)(nil)

type Server struct {
	engine   Engine
	validate *validator.Validate
	addr     string
	storage  string
	started  time.Time
	server   *http.Server
}

// NewServer builds the router of the public API. instruments may be nil when metrics are not set up.
func NewServer(engine Engine, conf config.Config, instruments *otelint.RestInstruments) (*Server, error) {
	requests, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	s := Server{
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		addr:     conf.HttpServer.Addr,
		storage:  conf.Storage.Driver,
		started:  time.Now(),
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           r,
			Addr:              conf.HttpServer.Addr,
		},
	}
	r.Use(middleware.Cors(conf.HttpServer.AllowedOrigins))
	r.Use(middleware.Opentelemetry(conf.Tracing, instruments))
	r.Use(middleware.StripEmptyQueryParams())
	r.Route("/v1", func(r chi.Router) {
		r.Use(requests.middleware)

		r.Route("/definitions", func(r chi.Router) {
			r.Get("/", s.findDefinitions)
			r.Post("/", s.deployDefinitions)
			r.Post("/suspend", s.suspendDefinition)
			r.Post("/resume", s.resumeDefinition)
			r.Get("/{id}", s.getDefinition)
		})
		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.findProcesses)
			r.Post("/", s.startProcess)
			r.Get("/{id}", s.getProcess)
			r.Delete("/{id}", s.deleteProcess)
			r.Post("/{id}/terminate", s.terminateProcess)
			r.Post("/{id}/cancel", s.cancelProcess)
			r.Get("/{id}/variables", s.getProcessVariables)
			r.Put("/{id}/variables", s.setProcessVariables)
		})
		r.Route("/activities/{id}", func(r chi.Router) {
			r.Post("/complete", s.completeActivity)
			r.Post("/fail", s.failActivity)
			r.Post("/retry", s.retryActivity)
			r.Post("/terminate", s.terminateActivity)
			r.Put("/variables", s.setActivityVariables)
		})
		r.Route("/external-tasks", func(r chi.Router) {
			r.Post("/poll", s.pollExternalTasks)
			r.Post("/{id}/complete", s.completeExternalTask)
			r.Post("/{id}/fail", s.failExternalTask)
		})
		r.Post("/messages", s.correlateMessage)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/compaction", s.compactHistory)
			r.Get("/jobs", s.findJobs)
			r.Post("/jobs", s.runJob)
			r.Get("/jobs/{id}", s.getJob)
		})
	})
	r.Route("/system", func(r chi.Router) {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/status", s.status)
	})
	return &s, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	log.Info("ZenOrchestrator REST server listening on %s", listener.Addr())
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("Error starting server: %s", err)
		}
	}()
	return listener, nil
}

func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Error("Error stopping server: %s", err)
	}
}

type Status struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Storage string    `json:"storage"`
	Started time.Time `json:"started"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, Status{
		Name:    s.engine.Name(),
		Status:  "UP",
		Storage: s.storage,
		Started: s.started,
	})
}

func writeJson(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error("Server error: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
