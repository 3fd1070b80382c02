package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexClient implements Client using Vertex AI generative models. The
// structured-output constraint is enforced through the JSON response MIME
// type with the schema appended to the system instruction.
type VertexClient struct {
	baseClient *genai.Client
}

// NewVertexClient creates a client for the given project and region.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexClient{baseClient: baseClient}, nil
}

// Complete issues one generation request and returns the text payload.
func (c *VertexClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := c.baseClient.GenerativeModel(req.Model)

	instruction := req.Instruction
	if len(req.ResponseSchema) > 0 {
		instruction += "\n\nRespond with a single JSON object matching this schema:\n" + string(req.ResponseSchema)
	}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	resp, err := model.GenerateContent(ctx, genai.Text("Return your decision for this form field."))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok && strings.TrimSpace(string(text)) != "" {
			return strings.TrimSpace(string(text)), nil
		}
	}
	return "", fmt.Errorf("%w: no text part in completion", ErrUpstream)
}

// Close releases the underlying client.
func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
