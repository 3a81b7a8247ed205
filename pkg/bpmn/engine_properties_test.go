package bpmn

import (
	"testing"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/stretchr/testify/assert"
)

func intPtr(i int) *int {
	return &i
}

func TestMaxRetriesPrecedence(t *testing.T) {
	// setup
	config := DefaultConfig()
	config.DefaultRetries = 1
	config.TaskProperties = map[string]TaskProperties{
		"OrderProcess": {Retries: intPtr(2)},
		"ship-order":   {Retries: intPtr(3)},
	}
	withRetries := &model.ActivityDefinition{External: &model.ExternalCapability{Topic: "ship-order", Retries: intPtr(5)}}
	byTopic := &model.ActivityDefinition{External: &model.ExternalCapability{Topic: "ship-order"}}
	other := &model.ActivityDefinition{External: &model.ExternalCapability{Topic: "other"}}

	// then
	assert.Equal(t, 5, config.maxRetries(withRetries, "OrderProcess"))
	assert.Equal(t, 2, config.maxRetries(byTopic, "OrderProcess"))
	assert.Equal(t, 3, config.maxRetries(byTopic, "InvoiceProcess"))
	assert.Equal(t, 1, config.maxRetries(other, "InvoiceProcess"))
}

func TestTaskTimeoutPrecedence(t *testing.T) {
	// setup
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	config := DefaultConfig()
	config.DefaultTaskTimeout = 10 * time.Minute
	config.TaskProperties = map[string]TaskProperties{
		"ship-order": {Timeout: "PT2M"},
	}
	withTimeout := &model.ActivityDefinition{External: &model.ExternalCapability{Topic: "ship-order", Timeout: "PT1M"}}
	byTopic := &model.ActivityDefinition{External: &model.ExternalCapability{Topic: "ship-order"}}
	other := &model.ActivityDefinition{External: &model.ExternalCapability{Topic: "other"}}

	// then
	assert.Equal(t, now.Add(time.Minute), config.taskTimeout(withTimeout, "OrderProcess", now))
	assert.Equal(t, now.Add(2*time.Minute), config.taskTimeout(byTopic, "OrderProcess", now))
	assert.Equal(t, now.Add(10*time.Minute), config.taskTimeout(other, "OrderProcess", now))
}
