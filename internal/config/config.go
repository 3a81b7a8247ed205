package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
)

const (
	StorageMemory = "memory"
	StorageSqlite = "sqlite"
)

type Config struct {
	HttpServer HttpServer `yaml:"httpServer" json:"httpServer"` // configuration of the public REST server
	Name       string     `yaml:"name" json:"name" env:"APP_NAME" env-default:"zenorchestrator"`
	Tracing    Tracing    `yaml:"tracing" json:"tracing"`
	Storage    Storage    `yaml:"storage" json:"storage"`
	Engine     Engine     `yaml:"engine" json:"engine"`
	Deploy     Deploy     `yaml:"deploy" json:"deploy"`
}

type HttpServer struct {
	Addr string `yaml:"addr" json:"addr" env:"REST_API_ADDR" env-default:":8080"`
	// AllowedOrigins of browser clients, "*" allows any origin without credentials
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins" env:"REST_ALLOWED_ORIGINS" env-default:"*"`
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// Name is filled from Config.Name
	Name string `yaml:"-" json:"-"`
	// TransferHeaders are copied from incoming requests into span attributes and the request context
	TransferHeaders []string `yaml:"transferHeaders" json:"transferHeaders" env:"OTEL_TRANSFER_HEADERS"`
}

type Storage struct {
	Driver string `yaml:"driver" json:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	// Path of the sqlite database file
	Path string `yaml:"path" json:"path" env:"STORAGE_PATH" env-default:"zenorchestrator.db"`
}

type Engine struct {
	Workers             int                            `yaml:"workers" json:"workers" env:"ENGINE_WORKERS" env-default:"8"`
	QueueSize           int                            `yaml:"queueSize" json:"queueSize" env:"ENGINE_QUEUE_SIZE" env-default:"1024"`
	JsPoolMin           int                            `yaml:"jsPoolMin" json:"jsPoolMin" env:"ENGINE_JS_POOL_MIN" env-default:"2"`
	JsPoolMax           int                            `yaml:"jsPoolMax" json:"jsPoolMax" env:"ENGINE_JS_POOL_MAX" env-default:"16"`
	DefinitionCacheSize int                            `yaml:"definitionCacheSize" json:"definitionCacheSize" env:"ENGINE_DEFINITION_CACHE_SIZE" env-default:"256"`
	DefinitionCacheTTL  time.Duration                  `yaml:"definitionCacheTtl" json:"definitionCacheTtl" env:"ENGINE_DEFINITION_CACHE_TTL" env-default:"1h"`
	DefaultTaskTimeout  time.Duration                  `yaml:"defaultTaskTimeout" json:"defaultTaskTimeout" env:"ENGINE_DEFAULT_TASK_TIMEOUT" env-default:"1h"`
	DefaultRetries      int                            `yaml:"defaultRetries" json:"defaultRetries" env:"ENGINE_DEFAULT_RETRIES" env-default:"0"`
	TimeoutScanInterval time.Duration                  `yaml:"timeoutScanInterval" json:"timeoutScanInterval" env:"ENGINE_TIMEOUT_SCAN_INTERVAL" env-default:"5s"`
	TimeoutScanBatch    int                            `yaml:"timeoutScanBatch" json:"timeoutScanBatch" env:"ENGINE_TIMEOUT_SCAN_BATCH" env-default:"100"`
	CompactionInterval  time.Duration                  `yaml:"compactionInterval" json:"compactionInterval" env:"ENGINE_COMPACTION_INTERVAL" env-default:"1h"`
	CompactionBatch     int                            `yaml:"compactionBatch" json:"compactionBatch" env:"ENGINE_COMPACTION_BATCH" env-default:"100"`
	LockDuration        time.Duration                  `yaml:"lockDuration" json:"lockDuration" env:"ENGINE_LOCK_DURATION" env-default:"1m"`
	TaskProperties      map[string]bpmn.TaskProperties `yaml:"taskProperties" json:"taskProperties"`
}

type Deploy struct {
	// Directory is scanned for definition files on start and watched for changes when Watch is set
	Directory string `yaml:"directory" json:"directory" env:"DEPLOY_DIRECTORY"`
	Watch     bool   `yaml:"watch" json:"watch" env:"DEPLOY_WATCH" env-default:"false"`
}

// EngineConfig converts the engine section into the engine configuration.
func (c Config) EngineConfig() bpmn.Config {
	res := bpmn.DefaultConfig()
	e := c.Engine
	res.Workers = e.Workers
	res.QueueSize = e.QueueSize
	res.JsPoolMin = e.JsPoolMin
	res.JsPoolMax = e.JsPoolMax
	res.DefinitionCacheSize = e.DefinitionCacheSize
	res.DefinitionCacheTTL = e.DefinitionCacheTTL
	res.DefaultTaskTimeout = e.DefaultTaskTimeout
	res.DefaultRetries = e.DefaultRetries
	res.TimeoutScanInterval = e.TimeoutScanInterval
	res.TimeoutScanBatch = e.TimeoutScanBatch
	res.CompactionInterval = e.CompactionInterval
	res.CompactionBatch = e.CompactionBatch
	res.LockDuration = e.LockDuration
	if e.TaskProperties != nil {
		res.TaskProperties = e.TaskProperties
	}
	return res
}

func (c Config) defaults() Config {
	c.Tracing.Name = c.Name
	return c
}

func (c Config) validate() error {
	var err error
	switch c.Storage.Driver {
	case StorageMemory, StorageSqlite:
	default:
		err = errors.Join(err, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Engine.Workers <= 0 {
		err = errors.Join(err, fmt.Errorf("engine workers must be positive, got %d", c.Engine.Workers))
	}
	if c.Engine.JsPoolMin > c.Engine.JsPoolMax {
		err = errors.Join(err, fmt.Errorf("jsPoolMin %d exceeds jsPoolMax %d", c.Engine.JsPoolMin, c.Engine.JsPoolMax))
	}
	if c.Deploy.Watch && c.Deploy.Directory == "" {
		err = errors.Join(err, fmt.Errorf("deploy watch requires a directory"))
	}
	return err
}

// Load reads fileName, or only the environment when the file does not exist.
func Load(fileName string) (Config, error) {
	c := Config{}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		return c, fmt.Errorf("failed to read the configuration: %w", err)
	}
	c = c.defaults()
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// InitConfig loads CONFIG_FILE or conf.yaml from the working directory and panics when the configuration is unusable.
func InitConfig() Config {
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	c, err := Load(fileName)
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}
