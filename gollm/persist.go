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
	"time"

	"github.com/kbserverapp/kbai/pkg/api"
)

// We define some standard structs to allow for persistence of the LLM requests and responses.
// This lets us store the history of the conversation for later analysis.

type RecordChatRequest struct {
	Model     string   `json:"model"`
	Messages  int      `json:"messages"`
	Functions []string `json:"functions,omitempty"`
}

type RecordChatResponse struct {
	FinishReason FinishReason  `json:"finishReason"`
	Message      *api.Message  `json:"message,omitempty"`
	Usage        api.Usage     `json:"usage"`
	Duration     time.Duration `json:"duration"`
}

type RecordCompletionResponse struct {
	Text string `json:"text"`
	Raw  any    `json:"raw"`
}

// NewRecordChatRequest summarizes a chat request for the journal.
func NewRecordChatRequest(req *ChatRequest) *RecordChatRequest {
	record := &RecordChatRequest{
		Model:    req.Model,
		Messages: len(req.Messages),
	}
	for _, fn := range req.Functions {
		record.Functions = append(record.Functions, fn.Name)
	}
	return record
}
