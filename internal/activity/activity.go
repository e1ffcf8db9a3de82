package activity

import (
	"context"

	"weft/internal/backend"
)

// Activity is one pluggable operation executed for a job. Execute must honor
// ctx cancellation and leave scoped resources registered on actx.
type Activity interface {
	ID() string
	Definition() Definition
	Execute(ctx context.Context, actx *Context, job *backend.Job) error
}

// HealthChecker is implemented by activities that depend on external tools.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Parameter describes one typed input or output slot.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Definition is the installable description of an activity.
type Definition struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Inputs        []Parameter    `json:"inputs,omitempty"`
	Outputs       []Parameter    `json:"outputs,omitempty"`
	Configuration []Parameter    `json:"configuration,omitempty"`
}

// Body renders the definition as an activities definition body.
func (d Definition) Body() map[string]any {
	body := map[string]any{}
	if d.Description != "" {
		body["description"] = d.Description
	}
	if len(d.Inputs) > 0 {
		body["inputs"] = parameterList(d.Inputs)
	}
	if len(d.Outputs) > 0 {
		body["outputs"] = parameterList(d.Outputs)
	}
	if len(d.Configuration) > 0 {
		body["configuration"] = parameterList(d.Configuration)
	}
	return body
}

func parameterList(params []Parameter) []any {
	out := make([]any, 0, len(params))
	for _, p := range params {
		entry := map[string]any{"name": p.Name, "type": p.Type}
		if p.Required {
			entry["required"] = true
		}
		if p.Description != "" {
			entry["description"] = p.Description
		}
		out = append(out, entry)
	}
	return out
}

// Health summarizes the readiness of an activity's external dependencies.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
