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
	"io"

	"github.com/kbserverapp/kbai/pkg/api"
)

// ErrModelUnavailable is returned by RetrieveModel when the model does not
// exist or the credentials in use cannot access it.
var ErrModelUnavailable = errors.New("model unavailable")

// Client is a client for a language model API.
type Client interface {
	io.Closer

	// ChatCompletion sends the full message history and returns the model's reply.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// GenerateCompletion generates a single completion for a given prompt.
	GenerateCompletion(ctx context.Context, req *CompletionRequest) (CompletionResponse, error)

	// RetrieveModel checks that a model is available, returning an error
	// wrapping ErrModelUnavailable if it is not.
	RetrieveModel(ctx context.Context, model string) error

	// ListModels lists the models available in the LLM.
	ListModels(ctx context.Context) ([]string, error)
}

// FunctionCallAuto leaves the choice of calling a function to the model.
const FunctionCallAuto = "auto"

// ChatRequest is a single chat call over a complete history.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []*api.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	// MaxTokens is omitted from the request when zero.
	MaxTokens    int                   `json:"max_tokens,omitempty"`
	Functions    []*FunctionDefinition `json:"functions,omitempty"`
	FunctionCall string                `json:"function_call,omitempty"`
}

// FinishReason says why the model stopped generating.
type FinishReason string

const (
	FinishReasonFunctionCall FinishReason = "function_call"
	FinishReasonStop         FinishReason = "stop"
	FinishReasonLength       FinishReason = "length"
)

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	ID      string    `json:"id,omitempty"`
	Model   string    `json:"model,omitempty"`
	Choices []Choice  `json:"choices"`
	Usage   api.Usage `json:"usage"`
}

// Choice is one candidate reply.
type Choice struct {
	Message      api.Message  `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// FirstChoice returns the first candidate, or an error if the model returned none.
func (r *ChatResponse) FirstChoice() (*Choice, error) {
	if r == nil || len(r.Choices) == 0 {
		return nil, errors.New("no choices in LLM response")
	}
	return &r.Choices[0], nil
}

// CompletionRequest is a request to generate a completion for a given prompt.
type CompletionRequest struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// CompletionResponse is a response from the GenerateCompletion method.
type CompletionResponse interface {
	Response() string
	UsageMetadata() any
}

// FunctionDefinition is a user-defined function that can be called by the LLM.
// If the LLM determines the function should be called, it will reply with a function call;
// we will invoke the function and send the results back.
type FunctionDefinition struct {
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is a schema for a function definition.
type Schema struct {
	Type        SchemaType         `json:"type,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Description string             `json:"description,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ToRawSchema converts a Schema to a json.RawMessage.
func (s *Schema) ToRawSchema() (json.RawMessage, error) {
	jsonSchema, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("converting tool schema to json: %w", err)
	}
	var rawSchema json.RawMessage
	if err := json.Unmarshal(jsonSchema, &rawSchema); err != nil {
		return nil, fmt.Errorf("converting tool schema to json.RawMessage: %w", err)
	}
	return rawSchema, nil
}

// SchemaType is the type of a field in a Schema.
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"

	TypeString  SchemaType = "string"
	TypeBoolean SchemaType = "boolean"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
)
