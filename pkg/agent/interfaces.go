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

package agent

import (
	"context"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/pkg/api"
)

type Generator interface {
	// Generate drains the pending turns against the session history. Literal
	// turns are appended; exec turns run model request and callback cycles
	// until the model replies without a function call. It returns the answer
	// transcript of this generation.
	Generate(ctx context.Context, step api.Step, turns []*api.Message) (string, error)

	// Complete sends a single-shot completion request with the session's
	// generation parameters.
	Complete(ctx context.Context, prompt string) (gollm.CompletionResponse, error)
}

// NamedStep is a Step with fixed names and an optional progress callback.
type NamedStep struct {
	StepName   string
	Prompt     string
	OnProgress func()
}

var _ api.Step = &NamedStep{}

func (s *NamedStep) Name() string {
	return s.StepName
}

func (s *NamedStep) PromptName() string {
	return s.Prompt
}

func (s *NamedStep) UpdateGUI() {
	if s.OnProgress != nil {
		s.OnProgress()
	}
}
