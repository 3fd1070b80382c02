package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formworks/pdf-form-filler/internal/pdf"
)

type fakeClient struct {
	payload string
	err     error
	lastReq CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.payload, nil
}

func sampleField() pdf.FormField {
	return pdf.FormField{
		Name:      "applicant_name",
		Page:      1,
		Label:     "Full name of applicant",
		MaxLength: 64,
		Required:  true,
	}
}

func TestRenderPrompt(t *testing.T) {
	prompt, err := RenderPrompt(sampleField(), "A visa application form.", "- name: Jane Doe (passport; source=passport)")
	require.NoError(t, err)

	assert.Contains(t, prompt, "name: applicant_name")
	assert.Contains(t, prompt, "label: Full name of applicant")
	assert.Contains(t, prompt, "maximum length: 64")
	assert.Contains(t, prompt, "required: true")
	assert.Contains(t, prompt, "A visa application form.")
	assert.Contains(t, prompt, "- name: Jane Doe (passport; source=passport)")
}

func TestRenderPromptDefaults(t *testing.T) {
	field := pdf.FormField{Name: "city", Page: 2}

	prompt, err := RenderPrompt(field, "", "")
	require.NoError(t, err)

	assert.Contains(t, prompt, "No document summary available.")
	assert.Contains(t, prompt, "No supporting facts provided.")
	assert.NotContains(t, prompt, "maximum length")
	assert.NotContains(t, prompt, "current value")
}

func TestDecideField(t *testing.T) {
	client := &fakeClient{
		payload: `{"field_name":"applicant_name","action":"fill","value":"Jane Doe","confidence":0.92,"reason":"passport fact"}`,
	}
	engine := NewEngine(client, "gpt-4o-mini", nil)

	decision, err := engine.DecideField(context.Background(), sampleField(), "A visa application form.", "- name: Jane Doe (passport; source=passport)")
	require.NoError(t, err)

	assert.Equal(t, "applicant_name", decision.FieldName)
	assert.Equal(t, ActionFill, decision.Action)
	assert.Equal(t, "Jane Doe", decision.Value)
	require.NotNil(t, decision.Confidence)
	assert.InDelta(t, 0.92, *decision.Confidence, 1e-9)

	assert.Equal(t, "gpt-4o-mini", client.lastReq.Model)
	assert.Contains(t, client.lastReq.Instruction, "applicant_name")

	var schema map[string]any
	require.NoError(t, json.Unmarshal(client.lastReq.ResponseSchema, &schema))
	assert.Equal(t, "json_schema", schema["type"])
}

func TestDecideFieldUpstreamError(t *testing.T) {
	client := &fakeClient{err: ErrUpstream}
	engine := NewEngine(client, "gpt-4o-mini", nil)

	_, err := engine.DecideField(context.Background(), sampleField(), "", "")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
		action  string
	}{
		{
			name:    "fill decision",
			payload: `{"field_name":"city","action":"fill","value":"Berlin"}`,
			action:  ActionFill,
		},
		{
			name:    "skip decision",
			payload: `{"field_name":"city","action":"skip","reason":"no matching fact"}`,
			action:  ActionSkip,
		},
		{
			name:    "uppercase action normalized",
			payload: `{"field_name":"city","action":"FILL","value":"Berlin"}`,
			action:  ActionFill,
		},
		{
			name:    "not json",
			payload: `the city is Berlin`,
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "unknown key",
			payload: `{"field_name":"city","action":"fill","notes":"extra"}`,
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "unexpected action",
			payload: `{"field_name":"city","action":"maybe"}`,
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "trailing data",
			payload: `{"field_name":"city","action":"skip"}{"field_name":"zip","action":"skip"}`,
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := ParseDecision(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, decision.Action)
		})
	}
}

func TestParseDecisionErrorsAreNotUpstream(t *testing.T) {
	_, err := ParseDecision(`not json`)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUpstream))
}
