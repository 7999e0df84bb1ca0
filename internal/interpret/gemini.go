package interpret

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash-lite"

const systemInstruction = "You are a smart home assistant that converts Vietnamese or English " +
	"natural language requests into structured device actions. Use dispatchDeviceCommand for " +
	"immediate commands and scheduleDeviceCommand for actions that happen in the future. The " +
	"action should be a concise command such as on, off, toggle, set_value."

// thinkingBudget caps the model's reasoning tokens per request.
const thinkingBudget int32 = 8192

var functionDeclarations = []*genai.FunctionDeclaration{
	{
		Name:        FuncDispatch,
		Description: "Send an immediate command to a device",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"device": {Type: genai.TypeString, Description: "Device name that should receive the command"},
				"action": {Type: genai.TypeString, Description: "Action such as on, off, toggle, set_value"},
				"value": {
					Type:        genai.TypeString,
					Description: "Optional value associated with the action (for example brightness level)",
				},
			},
			Required: []string{"device", "action"},
		},
	},
	{
		Name:        FuncSchedule,
		Description: "Schedule a device action for later execution",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"device": {Type: genai.TypeString, Description: "Device name"},
				"action": {Type: genai.TypeString, Description: "Action name"},
				"value":  {Type: genai.TypeString, Description: "Optional action value"},
				"runAt":  {Type: genai.TypeString, Description: "ISO8601 timestamp for the moment the action should run"},
			},
			Required: []string{"device", "action", "runAt"},
		},
	},
}

// GeminiBackend calls the Gemini API with function declarations.
type GeminiBackend struct {
	client *genai.Client
	model  string
	loc    *time.Location
}

// NewGeminiBackend creates a backend for apiKey. An empty model means
// DefaultModel. loc is the site timezone, given to the model so it can
// resolve relative times.
func NewGeminiBackend(ctx context.Context, apiKey, model string, loc *time.Location) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if loc == nil {
		loc = time.UTC
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model, loc: loc}, nil
}

// Call asks the model for a function call.
func (g *GeminiBackend) Call(ctx context.Context, prompt string, now time.Time) (*FunctionCall, error) {
	budget := thinkingBudget
	instruction := fmt.Sprintf("%s The current time is %s.", systemInstruction, now.In(g.loc).Format(time.RFC3339))

	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
			Tools:             []*genai.Tool{{FunctionDeclarations: functionDeclarations}},
			ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: &budget},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 || calls[0] == nil {
		return nil, ErrNoFunctionCall
	}
	return &FunctionCall{Name: calls[0].Name, Args: calls[0].Args}, nil
}
