package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/formworks/pdf-form-filler/internal/pdf"
)

// Decision actions.
const (
	ActionFill = "fill"
	ActionSkip = "skip"
)

// FieldDecision is the model's verdict on one form field.
type FieldDecision struct {
	FieldName  string   `json:"field_name"`
	Action     string   `json:"action"`
	Value      string   `json:"value,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// decisionSchema constrains the model's output to the decision shape. It is
// passed verbatim as an OpenAI response_format object.
const decisionSchema = `{
  "type": "json_schema",
  "json_schema": {
    "name": "field_fill_decision",
    "schema": {
      "type": "object",
      "properties": {
        "field_name": {"type": "string"},
        "action": {"type": "string", "enum": ["fill", "skip"]},
        "value": {"type": "string"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "reason": {"type": "string"}
      },
      "required": ["field_name", "action"],
      "additionalProperties": false
    }
  }
}`

const promptText = `You are a meticulous form-filling assistant. You are given one field of a PDF form
and a set of facts extracted from the user's documents. Decide whether the field can
be filled from the facts.

Field:
- name: {{.Field.Name}}
- label: {{.Field.Label}}
- page: {{.Field.Page}}
{{- if .Field.Placeholder}}
- current value: {{.Field.Placeholder}}
{{- end}}
{{- if .Field.MaxLength}}
- maximum length: {{.Field.MaxLength}}
{{- end}}
- required: {{.Field.Required}}

Document summary:
{{.DocumentDescription}}

Known facts:
{{.FactsText}}

Rules:
- Choose action "fill" only when a fact clearly provides the value this field asks for.
- Choose action "skip" when no fact applies; explain briefly in "reason".
- Never invent values that are not supported by the facts.
{{- if .Field.MaxLength}}
- The value must not exceed {{.Field.MaxLength}} characters.
{{- end}}`

var promptTemplate = template.Must(template.New("field-decision").Parse(promptText))

type promptData struct {
	Field               pdf.FormField
	DocumentDescription string
	FactsText           string
}

// Engine issues one decision request per field and parses the result.
type Engine struct {
	client Client
	model  string
	logger *slog.Logger
}

// NewEngine creates a decision engine bound to a model id.
func NewEngine(client Client, model string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, model: model, logger: logger}
}

// RenderPrompt builds the developer instruction for one field.
func RenderPrompt(field pdf.FormField, documentDescription, factsText string) (string, error) {
	if documentDescription == "" {
		documentDescription = "No document summary available."
	}
	if factsText == "" {
		factsText = "No supporting facts provided."
	}

	var b strings.Builder
	err := promptTemplate.Execute(&b, promptData{
		Field:               field,
		DocumentDescription: documentDescription,
		FactsText:           factsText,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return b.String(), nil
}

// DecideField requests one structured decision for a field. Transport failures
// and empty payloads surface as ErrUpstream; payloads that do not strictly
// parse into the decision shape surface as ErrMalformedResponse. No retries.
func (e *Engine) DecideField(ctx context.Context, field pdf.FormField, documentDescription, factsText string) (*FieldDecision, error) {
	prompt, err := RenderPrompt(field, documentDescription, factsText)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("prompting field decision", "field", field.Name, "model", e.model)

	payload, err := e.client.Complete(ctx, CompletionRequest{
		Model:          e.model,
		Instruction:    prompt,
		ResponseSchema: json.RawMessage(decisionSchema),
	})
	if err != nil {
		return nil, err
	}

	decision, err := ParseDecision(payload)
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// ParseDecision strictly decodes a decision payload. Unknown keys, trailing
// data and unexpected actions all fail closed.
func ParseDecision(payload string) (*FieldDecision, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()

	var decision FieldDecision
	if err := dec.Decode(&decision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after decision object", ErrMalformedResponse)
	}

	decision.Action = strings.ToLower(decision.Action)
	if decision.Action != ActionFill && decision.Action != ActionSkip {
		return nil, fmt.Errorf("%w: unexpected action %q", ErrMalformedResponse, decision.Action)
	}
	return &decision, nil
}
