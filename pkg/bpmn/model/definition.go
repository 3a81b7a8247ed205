package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/senseyeio/duration"
)

var (
	ErrIllegalArgument    = errors.New("illegal argument")
	ErrStartEventNotFound = errors.New("start event not found")
)

// ProcessDefinition is an immutable, versioned process graph.
// Activities are kept in a flat slice; parent links are ids resolved through an index.
type ProcessDefinition struct {
	Id         string               `json:"id" yaml:"id"`
	Key        string               `json:"key" yaml:"key" validate:"required"`
	Version    int                  `json:"version" yaml:"version" validate:"gte=0"`
	Name       string               `json:"name,omitempty" yaml:"name"`
	Activities []ActivityDefinition `json:"activities" yaml:"activities" validate:"required,min=1,dive"`
	Messages   []string             `json:"messages,omitempty" yaml:"messages"`
	Errors     []ErrorItem          `json:"errors,omitempty" yaml:"errors" validate:"dive"`
	Metadata   Metadata             `json:"metadata" yaml:"metadata"`
	Suspended  bool                 `json:"suspended" yaml:"-"`
	CreatedAt  time.Time            `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time            `json:"updatedAt" yaml:"-"`

	index map[string]int
}

type ErrorItem struct {
	Name      string `json:"name" yaml:"name"`
	ErrorCode string `json:"errorCode" yaml:"errorCode" validate:"required"`
	Message   string `json:"message,omitempty" yaml:"message"`
}

type Metadata struct {
	Origin     string `json:"origin,omitempty" yaml:"origin"`
	Deployment string `json:"deployment,omitempty" yaml:"deployment"`
	Schema     string `json:"schema,omitempty" yaml:"-"`
}

type ActivityDefinition struct {
	Id       string         `json:"id" yaml:"id" validate:"required"`
	ParentId string         `json:"parentId,omitempty" yaml:"parentId"`
	Name     string         `json:"name,omitempty" yaml:"name"`
	Type     ActivityType   `json:"type" yaml:"type" validate:"required,activity_type"`
	Incoming []string       `json:"incoming,omitempty" yaml:"incoming"`
	Outgoing []string       `json:"outgoing,omitempty" yaml:"outgoing"`
	Inputs   map[string]any `json:"inputs,omitempty" yaml:"inputs"`
	Outputs  map[string]any `json:"outputs,omitempty" yaml:"outputs"`

	Condition  *ConditionCapability  `json:"condition,omitempty" yaml:"condition"`
	Conditions []FlowCondition       `json:"conditions,omitempty" yaml:"conditions" validate:"dive"`
	Message    *MessageCapability    `json:"message,omitempty" yaml:"message"`
	Boundary   *BoundaryCapability   `json:"boundary,omitempty" yaml:"boundary"`
	Error      *ErrorCapability      `json:"error,omitempty" yaml:"error"`
	Escalation *EscalationCapability `json:"escalation,omitempty" yaml:"escalation"`
	Call       *CallCapability       `json:"call,omitempty" yaml:"call"`
	External   *ExternalCapability   `json:"external,omitempty" yaml:"external"`
	Timer      *TimerCapability      `json:"timer,omitempty" yaml:"timer"`
	Start      *StartCapability      `json:"start,omitempty" yaml:"start"`
}

type ConditionCapability struct {
	Expression string `json:"expression" yaml:"expression" validate:"required"`
}

// FlowCondition routes a gateway to Targets when Expression evaluates to true.
// An empty Expression marks the default flow.
type FlowCondition struct {
	Expression string   `json:"expression,omitempty" yaml:"expression"`
	Targets    []string `json:"targets" yaml:"targets" validate:"required,min=1"`
}

type MessageCapability struct {
	Reference string `json:"reference" yaml:"reference" validate:"required"`
}

type BoundaryCapability struct {
	AttachedToRef  string `json:"attachedToRef" yaml:"attachedToRef" validate:"required"`
	CancelActivity bool   `json:"cancelActivity" yaml:"cancelActivity"`
}

// ErrorCapability with an empty ErrorCode catches every error.
type ErrorCapability struct {
	ErrorCode string `json:"errorCode,omitempty" yaml:"errorCode"`
}

// EscalationCapability with an empty EscalationCode catches every escalation.
type EscalationCapability struct {
	EscalationCode string `json:"escalationCode,omitempty" yaml:"escalationCode"`
}

type CallCapability struct {
	CalledElement        string            `json:"calledElement" yaml:"calledElement" validate:"required"`
	CalledElementVersion *int              `json:"calledElementVersion,omitempty" yaml:"calledElementVersion"`
	Inputs               []VariableMapping `json:"inputs,omitempty" yaml:"inputs" validate:"dive"`
	Outputs              []VariableMapping `json:"outputs,omitempty" yaml:"outputs" validate:"dive"`
	ProcessAllInputs     bool              `json:"processAllInputs" yaml:"processAllInputs"`
	ProcessAllOutputs    bool              `json:"processAllOutputs" yaml:"processAllOutputs"`
}

// VariableMapping projects variables across a call activity boundary.
type VariableMapping struct {
	Source           string   `json:"source,omitempty" yaml:"source"`
	SourceExpression string   `json:"sourceExpression,omitempty" yaml:"sourceExpression"`
	Target           string   `json:"target,omitempty" yaml:"target"`
	Variables        []string `json:"variables,omitempty" yaml:"variables"`
}

type ExternalCapability struct {
	Topic   string `json:"topic,omitempty" yaml:"topic"`
	Retries *int   `json:"retries,omitempty" yaml:"retries" validate:"omitempty,gte=0"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout" validate:"omitempty,iso8601_duration"`
}

type TimerCapability struct {
	Duration string `json:"duration" yaml:"duration" validate:"required,iso8601_duration"`
}

type StartCapability struct {
	Interrupting bool `json:"interrupting" yaml:"interrupting"`
}

// Index builds the id to position lookup. It must be called after the activity slice changes.
func (d *ProcessDefinition) Index() {
	d.index = make(map[string]int, len(d.Activities))
	for i, a := range d.Activities {
		d.index[a.Id] = i
	}
}

func (d *ProcessDefinition) GetActivityById(id string) (*ActivityDefinition, bool) {
	if d.index != nil {
		i, ok := d.index[id]
		if !ok {
			return nil, false
		}
		return &d.Activities[i], true
	}
	for i := range d.Activities {
		if d.Activities[i].Id == id {
			return &d.Activities[i], true
		}
	}
	return nil, false
}

// GetStartActivity returns the top level START_EVENT.
func (d *ProcessDefinition) GetStartActivity() (*ActivityDefinition, error) {
	for i := range d.Activities {
		a := &d.Activities[i]
		if a.Type == ActivityTypeStartEvent && a.ParentId == "" {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: definition %s", ErrStartEventNotFound, d.Key)
}

// Scope returns [activityId, parentId, ..., definitionId].
func (d *ProcessDefinition) Scope(activityId string) ([]string, error) {
	activity, ok := d.GetActivityById(activityId)
	if !ok {
		return nil, fmt.Errorf("%w: activity %s is not part of definition %s", ErrIllegalArgument, activityId, d.Key)
	}
	scope := []string{activity.Id}
	for activity.ParentId != "" {
		parent, ok := d.GetActivityById(activity.ParentId)
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of activity %s is not part of definition %s", ErrIllegalArgument, activity.ParentId, activity.Id, d.Key)
		}
		if slices.Contains(scope, parent.Id) {
			return nil, fmt.Errorf("%w: parent chain of activity %s forms a cycle", ErrIllegalArgument, activityId)
		}
		scope = append(scope, parent.Id)
		activity = parent
	}
	return append(scope, d.Id), nil
}

// IsAsync reports whether the activity runs detached from the main flow,
// which is the case for everything nested in an event subprocess.
func (d *ProcessDefinition) IsAsync(activityId string) bool {
	scope, err := d.Scope(activityId)
	if err != nil {
		return false
	}
	for _, id := range scope[1:] {
		if a, ok := d.GetActivityById(id); ok && a.Type == ActivityTypeEventSubprocess {
			return true
		}
	}
	return false
}

func (d *ProcessDefinition) ActivitiesByIds(ids []string) []*ActivityDefinition {
	res := make([]*ActivityDefinition, 0, len(ids))
	for _, id := range ids {
		if a, ok := d.GetActivityById(id); ok {
			res = append(res, a)
		}
	}
	return res
}

func (d *ProcessDefinition) NextActivities(activityId string) []*ActivityDefinition {
	a, ok := d.GetActivityById(activityId)
	if !ok {
		return []*ActivityDefinition{}
	}
	return d.ActivitiesByIds(a.Outgoing)
}

func (d *ProcessDefinition) PreviousActivities(activityId string) []*ActivityDefinition {
	a, ok := d.GetActivityById(activityId)
	if !ok {
		return []*ActivityDefinition{}
	}
	return d.ActivitiesByIds(a.Incoming)
}

// ChildActivities returns the direct children of parentId.
func (d *ProcessDefinition) ChildActivities(parentId string) []*ActivityDefinition {
	res := make([]*ActivityDefinition, 0)
	for i := range d.Activities {
		if d.Activities[i].ParentId == parentId {
			res = append(res, &d.Activities[i])
		}
	}
	return res
}

// DescendantIds returns ids of all activities nested (at any depth) below parentId.
func (d *ProcessDefinition) DescendantIds(parentId string) []string {
	res := make([]string, 0)
	queue := []string{parentId}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range d.ChildActivities(current) {
			res = append(res, child.Id)
			queue = append(queue, child.Id)
		}
	}
	return res
}

// ChildStartEvent finds the first child of parentId whose type is one of types.
func (d *ProcessDefinition) ChildStartEvent(parentId string, types ...ActivityType) (*ActivityDefinition, bool) {
	for _, child := range d.ChildActivities(parentId) {
		if slices.Contains(types, child.Type) {
			return child, true
		}
	}
	return nil, false
}

// CanReach reports whether to is reachable from from by following outgoing links.
func (d *ProcessDefinition) CanReach(from string, to string) bool {
	visited := map[string]struct{}{}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		a, ok := d.GetActivityById(current)
		if !ok {
			continue
		}
		for _, next := range a.Outgoing {
			if next == to {
				return true
			}
			queue = append(queue, next)
		}
	}
	return false
}

func (d *ProcessDefinition) HasMessage(name string) bool {
	return slices.Contains(d.Messages, name)
}

// MessageStartEvent returns the top level MESSAGE_START_EVENT subscribed to message.
func (d *ProcessDefinition) MessageStartEvent(message string) (*ActivityDefinition, bool) {
	for i := range d.Activities {
		a := &d.Activities[i]
		if a.Type == ActivityTypeMessageStartEvent && a.ParentId == "" && a.MessageReference() == message {
			return a, true
		}
	}
	return nil, false
}

func (a *ActivityDefinition) MessageReference() string {
	if a.Message == nil {
		return ""
	}
	return a.Message.Reference
}

func (a *ActivityDefinition) ErrorCode() string {
	if a.Error == nil {
		return ""
	}
	return a.Error.ErrorCode
}

func (a *ActivityDefinition) EscalationCode() string {
	if a.Escalation == nil {
		return ""
	}
	return a.Escalation.EscalationCode
}

func (a *ActivityDefinition) AttachedToRef() string {
	if a.Boundary == nil {
		return ""
	}
	return a.Boundary.AttachedToRef
}

func (a *ActivityDefinition) CancelActivity() bool {
	return a.Boundary != nil && a.Boundary.CancelActivity
}

func (a *ActivityDefinition) IsInterrupting() bool {
	return a.Start != nil && a.Start.Interrupting
}

func (a *ActivityDefinition) Topic() string {
	if a.External == nil {
		return ""
	}
	return a.External.Topic
}

// ParseDuration parses an ISO-8601 duration such as PT1H.
func ParseDuration(value string) (duration.Duration, error) {
	d, err := duration.ParseISO8601(strings.TrimSpace(value))
	if err != nil {
		return duration.Duration{}, fmt.Errorf("%w: invalid duration %q: %w", ErrIllegalArgument, value, err)
	}
	return d, nil
}
