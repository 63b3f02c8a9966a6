// Package openai interprets free-form user questions about rivers using
// structured model output.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// AgentResponse defines the structured output from the OpenAI agent.
type AgentResponse struct {
	CommandName string `json:"command_name" jsonschema_description:"The command to execute, e.g., GetRiverStatusByName or GeneralQuery"`
	RiverName   string `json:"river_name" jsonschema_description:"The tracked river the user is asking about, matched against the known list, or empty"`
	UserMessage string `json:"user_message" jsonschema_description:"A short message to show back to the user"`
}

// OpenAIService defines the interface for interacting with the OpenAI agent.
type OpenAIService interface {
	InterpretUserQuery(ctx context.Context, userMessage string, supportedRivers []string) (*AgentResponse, error)
}

type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewOpenAIService creates and initializes a new OpenAIService.
func NewOpenAIService(apiKey string) (OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not configured")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	schema := GenerateSchema[AgentResponse]()

	return &openAIServiceImpl{
		client: client,
		schema: schema,
	}, nil
}

// InterpretUserQuery sends a message to the OpenAI agent and returns the structured response.
func (s *openAIServiceImpl) InterpretUserQuery(ctx context.Context, userMessage string, supportedRivers []string) (*AgentResponse, error) {
	systemPrompt := fmt.Sprintf(`You are a seasoned whitewater guide turned assistant for a river-conditions tracker. You know western US rivers, flows, and rafting gear inside out, and you keep answers short and practical.

Your job is to parse user requests about tracked rivers and route them to the right command.

Requirements:
- You answer questions about river conditions, runnability, and rafting.
- You reply in the same language the user used.

List of tracked rivers: %s

Behavior:
1. If the user clearly wants conditions for a specific river from the list:
   - command_name = "GetRiverStatusByName"
   - river_name: the exact name from the list that best matches; if no tracked river matches, leave river_name as an empty string.
   - user_message: a one-line confirmation (e.g. "Checking the Deschutes for you.").
2. If the user is not asking about a specific river (greetings, gear talk, anything else):
   - command_name = "GeneralQuery"
   - river_name = ""
   - user_message: a brief, helpful reply pointing them at /rivers when it makes sense.

Output **strictly** in JSON.`, supportedRivers)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing command, river name, and user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          openai.ChatModelGPT4o,
	})

	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &agentResp); err != nil {
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}

	return &agentResp, nil
}
