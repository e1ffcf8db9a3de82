package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
	"weft/internal/services/llm"
)

const (
	// PromptActivityID identifies the prompt execution activity.
	PromptActivityID = "ai.prompt.execute"

	defaultOutputKey    = "ai-result"
	defaultSystemPrompt = "You are a content analysis assistant. Respond with a single JSON object only."
	resultContentType   = "application/json"
	promptTextLimit     = 64 << 10
)

// Completer issues JSON-only chat completions.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PromptConfig is the per-job configuration of the prompt activity. Both
// prompts are text/template sources rendered against PromptData.
type PromptConfig struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt" validate:"required"`
	OutputKey    string `json:"output_key" validate:"required"`
	OutputName   string `json:"output_name"`
}

// PromptData is the template context.
type PromptData struct {
	Name       string
	Ref        string
	State      string
	Attributes map[string]any
	Text       string
}

// Prompt renders prompts for the job entity and stores the model's JSON reply.
type Prompt struct {
	client Completer
}

// NewPrompt wraps client; a nil client makes every execution a
// configuration failure.
func NewPrompt(client Completer) *Prompt {
	return &Prompt{client: client}
}

func (p *Prompt) ID() string { return PromptActivityID }

func (p *Prompt) Definition() activity.Definition {
	return activity.Definition{
		ID:          PromptActivityID,
		Name:        "Execute AI prompt",
		Description: "Renders prompt templates against the entity and stores the JSON completion.",
		Inputs:      []activity.Parameter{{Name: "entity", Type: "metadata|collection", Required: true}},
		Outputs:     []activity.Parameter{{Name: "output_key", Type: resultContentType}},
		Configuration: []activity.Parameter{
			{Name: "system_prompt", Type: "template"},
			{Name: "user_prompt", Type: "template", Required: true},
			{Name: "output_key", Type: "string", Description: "supplementary key, default " + defaultOutputKey},
			{Name: "output_name", Type: "string"},
		},
	}
}

// HealthCheck reports whether an API key is configured.
func (p *Prompt) HealthCheck(context.Context) activity.Health {
	if p.client == nil {
		return activity.Unhealthy(PromptActivityID, "llm client not configured")
	}
	if c, ok := p.client.(interface{ Configured() bool }); ok && !c.Configured() {
		return activity.Unhealthy(PromptActivityID, "llm api key not configured")
	}
	return activity.Healthy(PromptActivityID)
}

func (p *Prompt) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	cfg := PromptConfig{SystemPrompt: defaultSystemPrompt, OutputKey: defaultOutputKey}
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	if p.client == nil {
		return services.Wrap(services.ErrConfiguration, "ai", "prompt", "llm client not configured", nil)
	}
	entity, err := actx.Entity(ctx)
	if err != nil {
		return err
	}
	text, err := actx.Text(ctx, promptTextLimit)
	if err != nil {
		return err
	}
	data := PromptData{
		Name:       entity.Name,
		Ref:        entity.Ref.String(),
		State:      entity.WorkflowState,
		Attributes: entity.Attributes,
		Text:       text,
	}
	system, err := Render("system_prompt", cfg.SystemPrompt, data)
	if err != nil {
		return err
	}
	user, err := Render("user_prompt", cfg.UserPrompt, data)
	if err != nil {
		return err
	}

	raw, err := p.client.CompleteJSON(ctx, system, user)
	if err != nil {
		return err
	}
	var result any
	if err := llm.DecodeJSON(raw, &result); err != nil {
		return services.Wrap(services.ErrExternalTool, "ai", "prompt", "model returned invalid json", err)
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}

	name := cfg.OutputName
	if name == "" {
		name = cfg.OutputKey
	}
	if _, err := actx.Client().PutSupplementary(ctx, entity.Ref, backend.SupplementaryInput{
		Key:         cfg.OutputKey,
		Name:        name,
		ContentType: resultContentType,
	}, bytes.NewReader(encoded)); err != nil {
		return err
	}
	actx.Logger().Info("prompt result stored",
		logging.String("output_key", cfg.OutputKey),
		logging.Int("bytes", len(encoded)))
	return nil
}

// Render executes a prompt template. Missing map keys are errors so a typo
// in an attribute name fails the job instead of prompting with a blank.
func Render(name, source string, data PromptData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(source)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "ai", "render", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "ai", "render", name, err)
	}
	return b.String(), nil
}
