package backend

import (
	"encoding/json"
	"time"
)

// Category names one kind of workflow-definition data.
type Category string

const (
	CategoryCategories     Category = "categories"
	CategoryAttributeTypes Category = "attribute_types"
	CategoryStates         Category = "states"
	CategoryPrompts        Category = "prompts"
	CategoryModels         Category = "models"
	CategoryStorageSystems Category = "storage_systems"
	CategoryActivities     Category = "activities"
	CategoryTransitions    Category = "transitions"
	CategoryWorkflows      Category = "workflows"
	CategoryTraits         Category = "traits"
	CategoryCollections    Category = "collections"
)

// Categories lists every definition category in installation order.
func Categories() []Category {
	return []Category{
		CategoryCategories,
		CategoryAttributeTypes,
		CategoryStates,
		CategoryPrompts,
		CategoryModels,
		CategoryStorageSystems,
		CategoryActivities,
		CategoryTransitions,
		CategoryWorkflows,
		CategoryTraits,
		CategoryCollections,
	}
}

// Definition is one workflow-definition record identified by its natural key
// within a category.
type Definition struct {
	Category  Category       `json:"category"`
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Body      map[string]any `json:"body,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SameContent reports whether two definitions carry identical name and body.
// Bodies are compared through their canonical JSON encoding so numeric types
// decoded from different sources compare equal.
func (d Definition) SameContent(other Definition) bool {
	if d.Name != other.Name {
		return false
	}
	left, err := json.Marshal(d.Body)
	if err != nil {
		return false
	}
	right, err := json.Marshal(other.Body)
	if err != nil {
		return false
	}
	return string(left) == string(right)
}

// StateBody is the typed view of a states definition body.
type StateBody struct {
	// Activity, when set, is enqueued each time an entity enters the state.
	Activity *StateActivity `json:"activity,omitempty"`
	// Error marks a state reachable from any state regardless of transitions.
	Error bool `json:"error,omitempty"`
}

// StateActivity binds an activity to a state.
type StateActivity struct {
	ID            string         `json:"id"`
	Queue         string         `json:"queue,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	MaxAttempts   int            `json:"max_attempts,omitempty"`
}

// DefaultQueue receives jobs whose state and workflow name no queue.
const DefaultQueue = "default"

// WorkflowBody is the typed view of a workflows definition body.
type WorkflowBody struct {
	InitialState string `json:"initial_state"`
	Queue        string `json:"queue,omitempty"`
}

// TransitionBody is the typed view of a transitions definition body.
type TransitionBody struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DecodeBody converts a definition body into a typed view.
func DecodeBody(body map[string]any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
