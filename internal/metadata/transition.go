package metadata

import (
	"context"
	"fmt"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
)

// TransitionActivityID identifies the workflow-control activity.
const TransitionActivityID = "metadata.transition.to"

// TransitionConfig selects the state entered after the current one completes.
type TransitionConfig struct {
	State         string `json:"state" validate:"required"`
	RequiredState string `json:"required_state"`
	Immediate     bool   `json:"immediate"`
}

// Transition moves the entity to a configured state, optionally guarded by
// the state it must currently be in.
type Transition struct{}

func NewTransition() *Transition { return &Transition{} }

func (Transition) ID() string { return TransitionActivityID }

func (Transition) Definition() activity.Definition {
	return activity.Definition{
		ID:          TransitionActivityID,
		Name:        "Transition to state",
		Description: "Completes the current workflow state and enters the configured one.",
		Inputs:      []activity.Parameter{{Name: "entity", Type: "metadata|collection", Required: true}},
		Configuration: []activity.Parameter{
			{Name: "state", Type: "string", Required: true},
			{Name: "required_state", Type: "string", Description: "fail unless the entity is in this state"},
			{Name: "immediate", Type: "bool"},
		},
	}
}

func (Transition) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	var cfg TransitionConfig
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	entity, err := actx.Entity(ctx)
	if err != nil {
		return err
	}
	if cfg.RequiredState != "" && entity.WorkflowState != cfg.RequiredState {
		return services.Wrap(services.ErrPermanent, "metadata", "transition",
			fmt.Sprintf("%s is in state %q, transition requires %q", entity.Ref, entity.WorkflowState, cfg.RequiredState), nil)
	}
	actx.Logger().Info("workflow transition selected",
		logging.Args(logging.DecisionAttrs("next_state", cfg.State,
			fmt.Sprintf("from %q immediate=%t", entity.WorkflowState, cfg.Immediate))...)...)
	actx.SetNextState(cfg.State, cfg.Immediate)
	return nil
}
