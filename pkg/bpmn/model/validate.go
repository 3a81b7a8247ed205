package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("iso8601_duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDuration(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("activity_type", func(fl validator.FieldLevel) bool {
		return ActivityType(fl.Field().String()).IsValid()
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks the definition graph and builds its index.
// A definition whose parent links form a cycle is rejected.
func (d *ProcessDefinition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: definition %s: %w", ErrIllegalArgument, d.Key, err)
	}
	var errJoin error
	seen := make(map[string]struct{}, len(d.Activities))
	for _, a := range d.Activities {
		if _, ok := seen[a.Id]; ok {
			errJoin = errors.Join(errJoin, fmt.Errorf("duplicate activity id %s", a.Id))
		}
		seen[a.Id] = struct{}{}
	}
	d.Index()

	starts := 0
	for _, a := range d.Activities {
		if a.Type == ActivityTypeStartEvent && a.ParentId == "" {
			starts++
		}
		if a.ParentId != "" {
			if _, ok := seen[a.ParentId]; !ok {
				errJoin = errors.Join(errJoin, fmt.Errorf("activity %s references unknown parent %s", a.Id, a.ParentId))
			}
		}
		for _, ref := range append(append([]string{}, a.Incoming...), a.Outgoing...) {
			if _, ok := seen[ref]; !ok {
				errJoin = errors.Join(errJoin, fmt.Errorf("activity %s references unknown activity %s", a.Id, ref))
			}
		}
		for _, c := range a.Conditions {
			for _, target := range c.Targets {
				if _, ok := seen[target]; !ok {
					errJoin = errors.Join(errJoin, fmt.Errorf("gateway %s routes to unknown activity %s", a.Id, target))
				}
			}
		}
		errJoin = errors.Join(errJoin, validateCapabilities(a, seen))
	}
	if starts != 1 {
		errJoin = errors.Join(errJoin, fmt.Errorf("expected exactly one top level start event, found %d", starts))
	}
	if errJoin != nil {
		return fmt.Errorf("%w: definition %s: %w", ErrIllegalArgument, d.Key, errJoin)
	}

	// parent chains are only walked once every parent is known to exist
	for _, a := range d.Activities {
		if _, err := d.Scope(a.Id); err != nil {
			errJoin = errors.Join(errJoin, err)
		}
	}
	return errJoin
}

func validateCapabilities(a ActivityDefinition, ids map[string]struct{}) error {
	switch {
	case a.Type.IsBoundaryEvent():
		if a.Boundary == nil {
			return fmt.Errorf("boundary event %s has no attachedToRef", a.Id)
		}
		if _, ok := ids[a.Boundary.AttachedToRef]; !ok {
			return fmt.Errorf("boundary event %s is attached to unknown activity %s", a.Id, a.Boundary.AttachedToRef)
		}
		if a.Type == ActivityTypeTimerBoundaryEvent && a.Timer == nil {
			return fmt.Errorf("timer boundary event %s has no timer", a.Id)
		}
		if a.Type == ActivityTypeMessageBoundaryEvent && a.Message == nil {
			return fmt.Errorf("message boundary event %s has no message", a.Id)
		}
	case a.Type == ActivityTypeCallActivity && a.Call == nil:
		return fmt.Errorf("call activity %s has no calledElement", a.Id)
	case a.Type == ActivityTypeExternalTask && (a.External == nil || a.External.Topic == ""):
		return fmt.Errorf("external task %s has no topic", a.Id)
	case (a.Type == ActivityTypeMessageStartEvent ||
		a.Type == ActivityTypeMessageIntermediateCatchEvent ||
		a.Type == ActivityTypeReceiveTask ||
		a.Type == ActivityTypeSendTask ||
		a.Type == ActivityTypeMessageEndEvent ||
		a.Type == ActivityTypeMessageIntermediateThrowEvent) && a.Message == nil:
		return fmt.Errorf("activity %s of type %s has no message reference", a.Id, a.Type)
	case (a.Type == ActivityTypeExclusiveGateway || a.Type == ActivityTypeInclusiveGateway) && len(a.Outgoing) > 1 && len(a.Conditions) == 0:
		return fmt.Errorf("gateway %s splits without conditions", a.Id)
	}
	return nil
}
