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

package api

// Role tags a message in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"

	// RoleExec is never sent to the model. In a pending-turn queue it asks the
	// engine to run request/response/callback cycles against the history.
	RoleExec Role = "exec"
)

// Message is one entry of the conversation history.
//
// A message with RoleFunction carries the Name of the function whose result it
// holds. A message recording a model-issued call carries FunctionCall with the
// raw argument string exactly as the model produced it.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionCall is a function invocation requested by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// IsExec reports whether the message is the exec sentinel.
func (m *Message) IsExec() bool {
	return m.Role == RoleExec
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.FunctionCall != nil {
		fc := *m.FunctionCall
		out.FunctionCall = &fc
	}
	return &out
}

// Stats holds the running usage and cost totals of a session.
type Stats struct {
	PromptTokens     float64 `json:"prompt_tokens"`
	CompletionTokens float64 `json:"completion_tokens"`
	TotalTokens      float64 `json:"total_tokens"`
	PromptCost       float64 `json:"sp_cost"`
	CompletionCost   float64 `json:"sc_cost"`
	TotalCost        float64 `json:"s_total"`
	ElapsedTime      float64 `json:"elapsed_time"`
}

// Usage is the token report of a single model call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add accumulates a usage report into the running totals.
func (s *Stats) Add(u Usage) {
	s.PromptTokens += float64(u.PromptTokens)
	s.CompletionTokens += float64(u.CompletionTokens)
	s.TotalTokens += float64(u.TotalTokens)
}

// Step is the job step driving a generation. It names the prompt being
// worked on and receives progress notifications.
type Step interface {
	Name() string
	PromptName() string

	// UpdateGUI is called before every model request. It must not block.
	UpdateGUI()
}
