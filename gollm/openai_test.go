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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbserverapp/kbai/pkg/api"
)

func TestConvertSchemaForOpenAI(t *testing.T) {
	tests := []struct {
		name           string
		inputSchema    *Schema
		expectedType   SchemaType
		validateResult func(t *testing.T, result *Schema)
	}{
		{
			name:         "nil schema",
			inputSchema:  nil,
			expectedType: TypeObject,
			validateResult: func(t *testing.T, result *Schema) {
				if result.Properties == nil || len(result.Properties) != 0 {
					t.Error("expected empty properties map")
				}
			},
		},
		{
			name: "integer schema converted to number",
			inputSchema: &Schema{
				Type:        TypeInteger,
				Description: "An integer value",
			},
			expectedType: TypeNumber,
			validateResult: func(t *testing.T, result *Schema) {
				if result.Description != "An integer value" {
					t.Errorf("expected description preserved")
				}
			},
		},
		{
			name:         "empty type defaults to object",
			inputSchema:  &Schema{Description: "No type specified"},
			expectedType: TypeObject,
			validateResult: func(t *testing.T, result *Schema) {
				if result.Properties == nil {
					t.Error("expected properties map to be initialized")
				}
			},
		},
		{
			name:         "array schema without items (defaults to string)",
			inputSchema:  &Schema{Type: TypeArray},
			expectedType: TypeArray,
			validateResult: func(t *testing.T, result *Schema) {
				if result.Items == nil || result.Items.Type != TypeString {
					t.Error("expected default items to be string type")
				}
			},
		},
		{
			name: "write_file schema",
			inputSchema: &Schema{
				Type: TypeObject,
				Properties: map[string]*Schema{
					"name":     {Type: TypeString, Description: "The name of the file to write"},
					"contents": {Type: TypeString, Description: "The contents of the file"},
				},
				Required: []string{"name", "contents"},
			},
			expectedType: TypeObject,
			validateResult: func(t *testing.T, result *Schema) {
				if len(result.Properties) != 2 {
					t.Errorf("expected 2 properties, got %d", len(result.Properties))
				}
				if result.Properties["contents"].Description != "The contents of the file" {
					t.Error("expected property description to be preserved")
				}
				if len(result.Required) != 2 || result.Required[0] != "name" || result.Required[1] != "contents" {
					t.Errorf("expected required fields to be preserved in order, got %v", result.Required)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := convertSchemaForOpenAI(tt.inputSchema)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Type != tt.expectedType {
				t.Errorf("expected type %q, got %q", tt.expectedType, result.Type)
			}
			if tt.validateResult != nil {
				tt.validateResult(t, result)
			}
		})
	}
}

// An object schema with an empty properties map must still marshal a properties field.
func TestConvertFunctionParametersKeepsEmptyProperties(t *testing.T) {
	params, err := convertFunctionParameters(&FunctionDefinition{
		Name:       "noop",
		Parameters: &Schema{Type: TypeObject, Properties: map[string]*Schema{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params["type"] != "object" {
		t.Errorf("expected type 'object', got %v", params["type"])
	}
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties to be an object, got %T", params["properties"])
	}
	if len(props) != 0 {
		t.Errorf("expected empty properties object, got %v", props)
	}
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	messages := []*api.Message{
		{Role: api.RoleSystem, Content: "You are helpful."},
		{Role: api.RoleUser, Content: "Write a file."},
		{Role: api.RoleAssistant, FunctionCall: &api.FunctionCall{Name: "write_file", Arguments: `{"name":"a"}`}},
		{Role: api.RoleFunction, Name: "write_file", Content: "Done."},
	}
	out, err := convertMessagesToOpenAI(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if out[2].OfAssistant == nil || out[2].OfAssistant.FunctionCall.Name != "write_file" {
		t.Errorf("expected assistant function call to be carried over")
	}
	if out[3].OfFunction == nil || out[3].OfFunction.Name != "write_file" {
		t.Errorf("expected function message with name")
	}

	if _, err := convertMessagesToOpenAI([]*api.Message{{Role: api.RoleExec}}); err == nil {
		t.Errorf("expected exec role to be rejected")
	}
}

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient(context.Background(), ClientOptions{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return c
}

func TestOpenAIClientChatCompletion(t *testing.T) {
	var gotBody map[string]any
	c := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4",
  "choices": [{
    "index": 0,
    "finish_reason": "function_call",
    "message": {
      "role": "assistant",
      "content": null,
      "function_call": {"name": "read_file", "arguments": "{\"name\": \"plan.md\"}"}
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`)
	})

	resp, err := c.ChatCompletion(context.Background(), &ChatRequest{
		Model:        "gpt-4",
		Messages:     []*api.Message{{Role: api.RoleUser, Content: "read plan.md"}},
		Temperature:  0,
		FunctionCall: FunctionCallAuto,
		Functions: []*FunctionDefinition{{
			Name:        "read_file",
			Description: "Read the contents of a named file",
			Parameters: &Schema{
				Type:       TypeObject,
				Properties: map[string]*Schema{"name": {Type: TypeString}},
				Required:   []string{"name"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("chat completion: %v", err)
	}

	if gotBody["function_call"] != "auto" {
		t.Errorf("expected function_call auto, got %v", gotBody["function_call"])
	}
	if functions, ok := gotBody["functions"].([]any); !ok || len(functions) != 1 {
		t.Errorf("expected one function definition, got %v", gotBody["functions"])
	}
	if temp, ok := gotBody["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("expected temperature 0 to be sent, got %v", gotBody["temperature"])
	}

	choice, err := resp.FirstChoice()
	if err != nil {
		t.Fatalf("first choice: %v", err)
	}
	if choice.FinishReason != FinishReasonFunctionCall {
		t.Errorf("expected function_call finish reason, got %q", choice.FinishReason)
	}
	if choice.Message.FunctionCall == nil || choice.Message.FunctionCall.Arguments != `{"name": "plan.md"}` {
		t.Errorf("expected raw arguments to be preserved, got %+v", choice.Message.FunctionCall)
	}
	if resp.Usage != (api.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}) {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestOpenAIClientRetrieveModel(t *testing.T) {
	c := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/models/gpt-4":
			io.WriteString(w, `{"id": "gpt-4", "object": "model", "created": 1, "owned_by": "openai"}`)
		case "/models/broken":
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error": {"message": "The model does not exist", "type": "invalid_request_error", "code": "model_not_found"}}`)
		}
	})
	ctx := context.Background()

	if err := c.RetrieveModel(ctx, "gpt-4"); err != nil {
		t.Errorf("expected gpt-4 to be available, got %v", err)
	}
	if err := c.RetrieveModel(ctx, "gpt-5-preview"); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
	err := c.RetrieveModel(ctx, "broken")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected APIError with status 401, got %v", err)
	}
	if errors.Is(err, ErrModelUnavailable) {
		t.Errorf("auth failure must not be reported as an unavailable model")
	}
}

func TestOpenAIClientGenerateCompletion(t *testing.T) {
	var gotBody map[string]any
	c := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
  "id": "cmpl-1",
  "object": "text_completion",
  "created": 1,
  "model": "text-davinci-003",
  "choices": [{"text": "Hello there", "index": 0, "finish_reason": "stop", "logprobs": null}],
  "usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
}`)
	})

	resp, err := c.GenerateCompletion(context.Background(), &CompletionRequest{
		Model:       "text-davinci-003",
		Prompt:      "Say hello",
		MaxTokens:   2000,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("generate completion: %v", err)
	}
	if resp.Response() != "Hello there" {
		t.Errorf("unexpected completion text %q", resp.Response())
	}
	if gotBody["prompt"] != "Say hello" || gotBody["max_tokens"] != float64(2000) {
		t.Errorf("unexpected request body %v", gotBody)
	}
}
