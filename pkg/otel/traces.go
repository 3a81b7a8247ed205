package otel

const (
	Prefix                        = "bpmn-"
	AttributeProcessId            = Prefix + "process-id"
	AttributeProcessDefinitionKey = Prefix + "definition-key"
	AttributeActivityId           = Prefix + "activity-id"
	AttributeActivityType         = Prefix + "activity-type"
	AttributeCommand              = Prefix + "command"
	AttributeTopic                = Prefix + "topic"
)
