package bpmn

import (
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
)

// TaskProperties override retries and timeout of external tasks for one process key or topic.
type TaskProperties struct {
	Retries *int   `yaml:"retries" json:"retries"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

type Config struct {
	Workers             int
	QueueSize           int
	JsPoolMin           int
	JsPoolMax           int
	DefinitionCacheSize int
	DefinitionCacheTTL  time.Duration
	DefaultTaskTimeout  time.Duration
	DefaultRetries      int
	// TaskProperties is keyed by process definition key or by topic, the key wins.
	TaskProperties      map[string]TaskProperties
	TimeoutScanInterval time.Duration
	TimeoutScanBatch    int
	CompactionInterval  time.Duration
	CompactionBatch     int
	LockDuration        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:             8,
		QueueSize:           1024,
		JsPoolMin:           2,
		JsPoolMax:           16,
		DefinitionCacheSize: 256,
		DefinitionCacheTTL:  time.Hour,
		DefaultTaskTimeout:  time.Hour,
		DefaultRetries:      0,
		TaskProperties:      map[string]TaskProperties{},
		TimeoutScanInterval: 5 * time.Second,
		TimeoutScanBatch:    100,
		CompactionInterval:  time.Hour,
		CompactionBatch:     100,
		LockDuration:        time.Minute,
	}
}

func (c Config) taskProperties(processKey string, topic string) (TaskProperties, bool) {
	if p, ok := c.TaskProperties[processKey]; ok {
		return p, true
	}
	p, ok := c.TaskProperties[topic]
	return p, ok
}

// maxRetries resolves the retry budget of an external task: definition, configuration, default.
func (c Config) maxRetries(definition *model.ActivityDefinition, processKey string) int {
	if definition.External != nil && definition.External.Retries != nil {
		return *definition.External.Retries
	}
	if p, ok := c.taskProperties(processKey, definition.Topic()); ok && p.Retries != nil {
		return *p.Retries
	}
	return c.DefaultRetries
}

// taskTimeout resolves when a scheduled external task times out.
func (c Config) taskTimeout(definition *model.ActivityDefinition, processKey string, now time.Time) time.Time {
	if definition.External != nil && definition.External.Timeout != "" {
		if d, err := model.ParseDuration(definition.External.Timeout); err == nil {
			return d.Shift(now)
		}
	}
	if p, ok := c.taskProperties(processKey, definition.Topic()); ok && p.Timeout != "" {
		if d, err := model.ParseDuration(p.Timeout); err == nil {
			return d.Shift(now)
		}
	}
	return now.Add(c.DefaultTaskTimeout)
}
