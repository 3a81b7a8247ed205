package model

type ActivityType string

const (
	ActivityTypeStartEvent                       ActivityType = "START_EVENT"
	ActivityTypeMessageStartEvent                ActivityType = "MESSAGE_START_EVENT"
	ActivityTypeErrorStartEvent                  ActivityType = "ERROR_START_EVENT"
	ActivityTypeEscalationStartEvent             ActivityType = "ESCALATION_START_EVENT"
	ActivityTypeEndEvent                         ActivityType = "END_EVENT"
	ActivityTypeMessageEndEvent                  ActivityType = "MESSAGE_END_EVENT"
	ActivityTypeErrorEndEvent                    ActivityType = "ERROR_END_EVENT"
	ActivityTypeEscalationEndEvent               ActivityType = "ESCALATION_END_EVENT"
	ActivityTypeTerminateEndEvent                ActivityType = "TERMINATE_END_EVENT"
	ActivityTypeIntermediateCatchEvent           ActivityType = "INTERMEDIATE_CATCH_EVENT"
	ActivityTypeMessageIntermediateCatchEvent    ActivityType = "MESSAGE_INTERMEDIATE_CATCH_EVENT"
	ActivityTypeMessageIntermediateThrowEvent    ActivityType = "MESSAGE_INTERMEDIATE_THROW_EVENT"
	ActivityTypeEscalationIntermediateThrowEvent ActivityType = "ESCALATION_INTERMEDIATE_THROW_EVENT"
	ActivityTypeExternalTask                     ActivityType = "EXTERNAL_TASK"
	ActivityTypeSendTask                         ActivityType = "SEND_TASK"
	ActivityTypeReceiveTask                      ActivityType = "RECEIVE_TASK"
	ActivityTypeExclusiveGateway                 ActivityType = "EXCLUSIVE_GATEWAY"
	ActivityTypeParallelGateway                  ActivityType = "PARALLEL_GATEWAY"
	ActivityTypeInclusiveGateway                 ActivityType = "INCLUSIVE_GATEWAY"
	ActivityTypeEventBasedGateway                ActivityType = "EVENT_BASED_GATEWAY"
	ActivityTypeSubprocess                       ActivityType = "SUBPROCESS"
	ActivityTypeEventSubprocess                  ActivityType = "EVENT_SUBPROCESS"
	ActivityTypeCallActivity                     ActivityType = "CALL_ACTIVITY"
	ActivityTypeTimerBoundaryEvent               ActivityType = "TIMER_BOUNDARY_EVENT"
	ActivityTypeMessageBoundaryEvent             ActivityType = "MESSAGE_BOUNDARY_EVENT"
	ActivityTypeErrorBoundaryEvent               ActivityType = "ERROR_BOUNDARY_EVENT"
	ActivityTypeEscalationBoundaryEvent          ActivityType = "ESCALATION_BOUNDARY_EVENT"
)

// ActivityTypes lists every type the engine knows how to execute.
var ActivityTypes = []ActivityType{
	ActivityTypeStartEvent,
	ActivityTypeMessageStartEvent,
	ActivityTypeErrorStartEvent,
	ActivityTypeEscalationStartEvent,
	ActivityTypeEndEvent,
	ActivityTypeMessageEndEvent,
	ActivityTypeErrorEndEvent,
	ActivityTypeEscalationEndEvent,
	ActivityTypeTerminateEndEvent,
	ActivityTypeIntermediateCatchEvent,
	ActivityTypeMessageIntermediateCatchEvent,
	ActivityTypeMessageIntermediateThrowEvent,
	ActivityTypeEscalationIntermediateThrowEvent,
	ActivityTypeExternalTask,
	ActivityTypeSendTask,
	ActivityTypeReceiveTask,
	ActivityTypeExclusiveGateway,
	ActivityTypeParallelGateway,
	ActivityTypeInclusiveGateway,
	ActivityTypeEventBasedGateway,
	ActivityTypeSubprocess,
	ActivityTypeEventSubprocess,
	ActivityTypeCallActivity,
	ActivityTypeTimerBoundaryEvent,
	ActivityTypeMessageBoundaryEvent,
	ActivityTypeErrorBoundaryEvent,
	ActivityTypeEscalationBoundaryEvent,
}

func (t ActivityType) IsSubprocess() bool {
	return t == ActivityTypeSubprocess || t == ActivityTypeEventSubprocess || t == ActivityTypeCallActivity
}

func (t ActivityType) IsGateway() bool {
	switch t {
	case ActivityTypeExclusiveGateway, ActivityTypeParallelGateway, ActivityTypeInclusiveGateway, ActivityTypeEventBasedGateway:
		return true
	}
	return false
}

func (t ActivityType) IsBoundaryEvent() bool {
	switch t {
	case ActivityTypeTimerBoundaryEvent, ActivityTypeMessageBoundaryEvent, ActivityTypeErrorBoundaryEvent, ActivityTypeEscalationBoundaryEvent:
		return true
	}
	return false
}

// IsEventSubprocessStart reports whether the type can start an event subprocess.
func (t ActivityType) IsEventSubprocessStart() bool {
	switch t {
	case ActivityTypeMessageStartEvent, ActivityTypeErrorStartEvent, ActivityTypeEscalationStartEvent:
		return true
	}
	return false
}

func (t ActivityType) IsValid() bool {
	for _, at := range ActivityTypes {
		if at == t {
			return true
		}
	}
	return false
}
