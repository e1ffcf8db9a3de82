package metadata

import (
	"context"
	"fmt"
	"reflect"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
)

// BranchActivityID identifies the conditional workflow-control activity.
const BranchActivityID = "workflow.general.if"

// BranchConfig picks the next state from one entity attribute. Without
// Equals the attribute only has to be present and truthy.
type BranchConfig struct {
	Attribute string `json:"attribute" validate:"required"`
	Equals    any    `json:"equals"`
	Then      string `json:"then_state" validate:"required_without=Else"`
	Else      string `json:"else_state"`
	Immediate bool   `json:"immediate"`
}

// Branch enters then_state when the condition holds and else_state when it
// does not. An empty branch leaves the job configuration's next_state in
// effect.
type Branch struct{}

func NewBranch() *Branch { return &Branch{} }

func (Branch) ID() string { return BranchActivityID }

func (Branch) Definition() activity.Definition {
	return activity.Definition{
		ID:          BranchActivityID,
		Name:        "Branch on attribute",
		Description: "Selects the next workflow state from an attribute condition.",
		Inputs:      []activity.Parameter{{Name: "entity", Type: "metadata|collection", Required: true}},
		Configuration: []activity.Parameter{
			{Name: "attribute", Type: "string", Required: true},
			{Name: "equals", Type: "any", Description: "required value; omitted means truthy"},
			{Name: "then_state", Type: "string"},
			{Name: "else_state", Type: "string"},
			{Name: "immediate", Type: "bool"},
		},
	}
}

func (Branch) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	var cfg BranchConfig
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	entity, err := actx.Entity(ctx)
	if err != nil {
		return err
	}
	value, present := entity.Attributes[cfg.Attribute]
	matched := present && truthy(value)
	if cfg.Equals != nil {
		matched = present && reflect.DeepEqual(value, cfg.Equals)
	}

	state, result := cfg.Else, "else"
	if matched {
		state, result = cfg.Then, "then"
	}
	actx.Logger().Info("branch evaluated",
		logging.Args(logging.DecisionAttrs("workflow_branch", result,
			fmt.Sprintf("attribute %q present=%t next_state=%q", cfg.Attribute, present, state))...)...)
	if state != "" {
		actx.SetNextState(state, cfg.Immediate)
	}
	return nil
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}
