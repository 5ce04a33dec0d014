// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gollm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"k8s.io/klog/v2"

	"github.com/kbserverapp/kbai/pkg/api"
)

// init registers the OpenAI provider factory. Credentials are read when a
// client is built, not here.
func init() {
	if err := RegisterProvider("openai", newOpenAIClientFactory); err != nil {
		klog.Fatalf("Failed to register openai provider: %v", err)
	}

	aliases := []string{"openai-compatible"}
	for _, alias := range aliases {
		if err := RegisterProvider(alias, newOpenAIClientFactory); err != nil {
			klog.Warningf("Failed to register openai provider alias %q: %v", alias, err)
		}
	}
}

// OpenAIClient implements the gollm.Client interface for OpenAI models.
type OpenAIClient struct {
	client openai.Client
}

// Ensure OpenAIClient implements the Client interface.
var _ Client = &OpenAIClient{}

// NewOpenAIClient creates a new client for interacting with OpenAI.
//
// Unset options fall back to OPENAI_API_KEY and OPENAI_ENDPOINT / OPENAI_API_BASE.
// The SDK's own retries are disabled; callers decide whether to retry.
func NewOpenAIClient(ctx context.Context, opts ClientOptions) (*OpenAIClient, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not found. Set via OPENAI_API_KEY env var")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_ENDPOINT")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_API_BASE")
	}
	if baseURL != "" {
		klog.FromContext(ctx).Info("Using custom OpenAI base URL", "baseURL", baseURL)
		options = append(options, option.WithBaseURL(baseURL))
	}

	options = append(options, option.WithHTTPClient(createCustomHTTPClient(opts.SkipVerifySSL)))

	return &OpenAIClient{
		client: openai.NewClient(options...),
	}, nil
}

// newOpenAIClientFactory is the factory function for creating OpenAI clients.
func newOpenAIClientFactory(ctx context.Context, opts ClientOptions) (Client, error) {
	return NewOpenAIClient(ctx, opts)
}

// Close cleans up any resources used by the client.
func (c *OpenAIClient) Close() error {
	return nil
}

// ChatCompletion sends the history and the function definitions to the Chat Completions API.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	log := klog.FromContext(ctx)

	messages, err := convertMessagesToOpenAI(req.Messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Functions) > 0 {
		functions, err := convertFunctionDefinitions(req.Functions)
		if err != nil {
			return nil, err
		}
		params.Functions = functions
		if req.FunctionCall != "" {
			params.FunctionCall = openai.ChatCompletionNewParamsFunctionCallUnion{
				OfFunctionCallMode: openai.String(req.FunctionCall),
			}
		}
	}

	log.V(1).Info("Sending request to OpenAI Chat API", "model", req.Model, "messages", len(messages), "functions", len(params.Functions))
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI chat completion failed: %w", toAPIError(err))
	}
	log.V(1).Info("Received response from OpenAI Chat API", "id", completion.ID, "choices", len(completion.Choices))

	return convertChatCompletion(completion), nil
}

// openAICompletionResponse passes the SDK completion through untouched.
type openAICompletionResponse struct {
	completion *openai.Completion
}

var _ CompletionResponse = (*openAICompletionResponse)(nil)

// Response returns the text of the first choice.
func (r *openAICompletionResponse) Response() string {
	if len(r.completion.Choices) == 0 {
		return ""
	}
	return r.completion.Choices[0].Text
}

// UsageMetadata returns the SDK usage report.
func (r *openAICompletionResponse) UsageMetadata() any {
	return r.completion.Usage
}

// Raw returns the SDK completion object.
func (r *openAICompletionResponse) Raw() *openai.Completion {
	return r.completion
}

// GenerateCompletion sends a request to the legacy Completions API.
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, req *CompletionRequest) (CompletionResponse, error) {
	log := klog.FromContext(ctx)
	log.Info("OpenAI GenerateCompletion called", "model", req.Model)
	log.V(1).Info("Completion prompt", "prompt", req.Prompt)

	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(req.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate OpenAI completion: %w", toAPIError(err))
	}
	return &openAICompletionResponse{completion: completion}, nil
}

// RetrieveModel looks the model up; a 400 or 404 from the API means unavailable.
func (c *OpenAIClient) RetrieveModel(ctx context.Context, model string) error {
	if _, err := c.client.Models.Get(ctx, model); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusBadRequest) {
			return fmt.Errorf("%w: %q: %v", ErrModelUnavailable, model, err)
		}
		return fmt.Errorf("retrieving model %q: %w", model, toAPIError(err))
	}
	return nil
}

// ListModels returns a slice of strings with model IDs.
// Note: This may not work with all OpenAI-compatible providers if they don't fully implement
// the Models.List endpoint or return data in a different format.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	res, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models from OpenAI: %w", toAPIError(err))
	}

	modelIDs := make([]string, 0, len(res.Data))
	for _, model := range res.Data {
		modelIDs = append(modelIDs, model.ID)
	}

	return modelIDs, nil
}

// toAPIError converts SDK errors into APIError so DefaultIsRetryableError can classify them.
func toAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return err
}

// convertMessagesToOpenAI maps history records onto SDK message params.
func convertMessagesToOpenAI(messages []*api.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i, m := range messages {
		switch m.Role {
		case api.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case api.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case api.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			if m.FunctionCall != nil {
				assistant.FunctionCall = openai.ChatCompletionAssistantMessageParamFunctionCall{
					Name:      m.FunctionCall.Name,
					Arguments: m.FunctionCall.Arguments,
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case api.RoleFunction:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfFunction: &openai.ChatCompletionFunctionMessageParam{
					Name:    m.Name,
					Content: openai.String(m.Content),
				},
			})
		default:
			return nil, fmt.Errorf("message %d: role %q cannot be sent to the model", i, m.Role)
		}
	}
	return out, nil
}

// convertFunctionDefinitions converts gollm definitions into the legacy functions parameter.
func convertFunctionDefinitions(defs []*FunctionDefinition) ([]openai.ChatCompletionNewParamsFunction, error) {
	functions := make([]openai.ChatCompletionNewParamsFunction, 0, len(defs))
	for _, def := range defs {
		params, err := convertFunctionParameters(def)
		if err != nil {
			return nil, fmt.Errorf("failed to process parameters for function %s: %w", def.Name, err)
		}
		fn := openai.ChatCompletionNewParamsFunction{
			Name:       def.Name,
			Parameters: params,
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		functions = append(functions, fn)
	}
	return functions, nil
}

func convertChatCompletion(completion *openai.ChatCompletion) *ChatResponse {
	resp := &ChatResponse{
		ID:    completion.ID,
		Model: completion.Model,
		Usage: api.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}
	for _, choice := range completion.Choices {
		role := api.Role(choice.Message.Role)
		if role == "" {
			role = api.RoleAssistant
		}
		msg := api.Message{
			Role:    role,
			Content: choice.Message.Content,
		}
		if choice.Message.FunctionCall.Name != "" {
			msg.FunctionCall = &api.FunctionCall{
				Name:      choice.Message.FunctionCall.Name,
				Arguments: choice.Message.FunctionCall.Arguments,
			}
		}
		resp.Choices = append(resp.Choices, Choice{
			Message:      msg,
			FinishReason: FinishReason(choice.FinishReason),
		})
	}
	return resp
}

// convertSchemaForOpenAI converts and transforms a schema for OpenAI compatibility
// This function handles both gollm Schema objects and ensures the final JSON meets OpenAI requirements
func convertSchemaForOpenAI(schema *Schema) (*Schema, error) {
	if schema == nil {
		return &Schema{
			Type:       TypeObject,
			Properties: make(map[string]*Schema),
		}, nil
	}

	// Create a deep copy to avoid modifying the original
	validated := &Schema{
		Description: schema.Description,
	}
	if len(schema.Required) > 0 {
		validated.Required = make([]string, len(schema.Required))
		copy(validated.Required, schema.Required)
	}

	switch schema.Type {
	case TypeObject:
		validated.Type = TypeObject
		// Objects MUST have properties for OpenAI (even if empty)
		validated.Properties = make(map[string]*Schema)
		for key, prop := range schema.Properties {
			validatedProp, err := convertSchemaForOpenAI(prop)
			if err != nil {
				return nil, fmt.Errorf("validating property %q: %w", key, err)
			}
			validated.Properties[key] = validatedProp
		}

	case TypeArray:
		validated.Type = TypeArray
		// Arrays MUST have items schema for OpenAI
		if schema.Items != nil {
			validatedItems, err := convertSchemaForOpenAI(schema.Items)
			if err != nil {
				return nil, fmt.Errorf("validating array items: %w", err)
			}
			validated.Items = validatedItems
		} else {
			validated.Items = &Schema{Type: TypeString}
		}

	case TypeString:
		validated.Type = TypeString

	case TypeNumber:
		validated.Type = TypeNumber

	case TypeInteger:
		// OpenAI prefers "number" for integers
		validated.Type = TypeNumber

	case TypeBoolean:
		validated.Type = TypeBoolean

	case "":
		klog.Warningf("Schema has no type, defaulting to object")
		validated.Type = TypeObject
		validated.Properties = make(map[string]*Schema)

	default:
		klog.Warningf("Unknown schema type '%s', defaulting to object", schema.Type)
		validated.Type = TypeObject
		validated.Properties = make(map[string]*Schema)
	}

	return validated, nil
}

// convertFunctionParameters handles the conversion of gollm parameters to OpenAI format
func convertFunctionParameters(def *FunctionDefinition) (openai.FunctionParameters, error) {
	var params openai.FunctionParameters

	if def.Parameters == nil {
		return params, nil
	}

	validatedSchema, err := convertSchemaForOpenAI(def.Parameters)
	if err != nil {
		return params, fmt.Errorf("schema conversion failed: %w", err)
	}

	schemaBytes, err := json.Marshal(openAISchema{Schema: validatedSchema})
	if err != nil {
		return params, fmt.Errorf("failed to convert schema: %w", err)
	}
	klog.V(2).Infof("OpenAI schema for function %s: %s", def.Name, string(schemaBytes))

	if err := json.Unmarshal(schemaBytes, &params); err != nil {
		return params, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	return params, nil
}

// openAISchema wraps a gollm Schema with OpenAI-specific marshaling behavior
type openAISchema struct {
	*Schema
}

// MarshalJSON provides OpenAI-specific JSON marshaling that ensures object schemas have properties
func (s openAISchema) MarshalJSON() ([]byte, error) {
	result := make(map[string]any)

	if s.Type != "" {
		result["type"] = s.Type
	}

	if s.Description != "" {
		result["description"] = s.Description
	}

	if len(s.Required) > 0 {
		result["required"] = s.Required
	}

	// For object types, always include properties (even if empty) to satisfy OpenAI
	if s.Type == TypeObject {
		if s.Properties != nil {
			result["properties"] = s.Properties
		} else {
			result["properties"] = make(map[string]*Schema)
		}
	} else if len(s.Properties) > 0 {
		result["properties"] = s.Properties
	}

	if s.Items != nil {
		result["items"] = s.Items
	}

	return json.Marshal(result)
}
