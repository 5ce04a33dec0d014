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
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/pkg/api"
	"github.com/kbserverapp/kbai/pkg/costs"
	"github.com/kbserverapp/kbai/pkg/journal"
	"github.com/kbserverapp/kbai/pkg/session"
	"github.com/kbserverapp/kbai/pkg/tools"
)

// contentsMarker opens the span that SanitizeArguments repairs.
const contentsMarker = `"contents": "`

// Engine drives one session through generations. It is not safe for
// concurrent use: one Generate or Complete call at a time per Engine.
type Engine struct {
	LLM     gollm.Client
	Session *session.Session
	Tools   *tools.Tools
	Costs   costs.Table

	// Recorder captures events for diagnostics. When nil, the recorder
	// already attached to the context (or klog) is used.
	Recorder journal.Recorder
}

var _ Generator = &Engine{}

type generateEvent struct {
	Step   string `json:"step,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Turns  int    `json:"turns"`
}

type malformedCallEvent struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Error     string `json:"error"`
}

func (e *Engine) withRecorder(ctx context.Context) context.Context {
	if e.Recorder != nil {
		return journal.ContextWithRecorder(ctx, e.Recorder)
	}
	return ctx
}

// Generate implements Generator.
//
// The model's pricing is looked up before any turn is consumed. Transport
// failures, unknown functions and callback failures end the generation; a
// function call whose arguments do not parse is reported back to the model,
// which is asked again without limit.
func (e *Engine) Generate(ctx context.Context, step api.Step, turns []*api.Message) (string, error) {
	ctx = e.withRecorder(ctx)
	log := klog.FromContext(ctx)
	s := e.Session

	pricing, err := e.Costs.Lookup(s.Model)
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		s.Stats.ElapsedTime += time.Since(start).Seconds()
	}()

	s.Answer = fmt.Sprintf("Log of Step: %s : %s\n", step.Name(), step.PromptName())
	journal.Record(ctx, journal.ActionGenerateStart, generateEvent{
		Step:   step.Name(),
		Prompt: step.PromptName(),
		Turns:  len(turns),
	})

	for _, turn := range turns {
		if !turn.IsExec() {
			msg := turn.Clone()
			s.Messages = append(s.Messages, msg)
			log.Info("    --> msg", "role", msg.Role, "content", msg.Content)
			continue
		}
		if err := e.exec(ctx, step); err != nil {
			return "", err
		}
	}

	s.Stats.PromptCost, s.Stats.CompletionCost, s.Stats.TotalCost = pricing.Cost(s.Stats.PromptTokens, s.Stats.CompletionTokens)
	journal.Record(ctx, journal.ActionGenerateDone, s.Stats)
	log.V(1).Info("Generation finished", "step", step.Name(), "totalCost", s.Stats.TotalCost)

	return s.Answer, nil
}

// exec runs request/response cycles for one exec turn until the model
// replies without asking for a function.
func (e *Engine) exec(ctx context.Context, step api.Step) error {
	log := klog.FromContext(ctx)
	s := e.Session
	llm := &gollm.AsyncClient{Client: e.LLM}
	functions := e.Tools.FunctionDefinitions()

	for {
		step.UpdateGUI()

		req := &gollm.ChatRequest{
			Model:        s.Model,
			Messages:     slices.Clone(s.Messages),
			Temperature:  s.Temperature,
			Functions:    functions,
			FunctionCall: gollm.FunctionCallAuto,
		}
		journal.Record(ctx, journal.ActionChatRequest, gollm.NewRecordChatRequest(req))

		sent := time.Now()
		resp, err := llm.Chat(ctx, req).Wait(ctx)
		if err != nil {
			return err
		}
		s.Stats.Add(resp.Usage)

		choice, err := resp.FirstChoice()
		if err != nil {
			return err
		}
		journal.Record(ctx, journal.ActionChatResponse, &gollm.RecordChatResponse{
			FinishReason: choice.FinishReason,
			Message:      &choice.Message,
			Usage:        resp.Usage,
			Duration:     time.Since(sent),
		})

		role := choice.Message.Role
		if role == "" {
			role = api.RoleAssistant
		}
		reply := &api.Message{
			Role:    role,
			Content: choice.Message.Content,
		}

		if choice.FinishReason != gollm.FinishReasonFunctionCall || choice.Message.FunctionCall == nil {
			s.Answer = s.Answer + "\n\n - " + reply.Content
			s.Messages = append(s.Messages, reply)
			log.Info("    <-- msg", "role", reply.Role, "content", reply.Content)
			return nil
		}

		call := choice.Message.FunctionCall
		reply.FunctionCall = &api.FunctionCall{
			Name:      call.Name,
			Arguments: call.Arguments,
		}

		args, err := parseArguments(call.Arguments)
		if err != nil {
			klog.Warningf("While parsing arguments for function call %s\n%v", call.Name, err)
			journal.Record(ctx, journal.ActionMalformedCall, malformedCallEvent{
				Name:      call.Name,
				Arguments: call.Arguments,
				Error:     err.Error(),
			})
			reply.Content = fmt.Sprintf("Arguments are not valid JSON\n%v", err)
			s.Messages = append(s.Messages, reply)
			log.Info("    --> msg", "role", reply.Role, "content", reply.Content, "function", call.Name)
			continue
		}

		s.Messages = append(s.Messages, reply)
		log.Info("    <-- msg", "role", reply.Role, "function", call.Name, "arguments", call.Arguments)

		result, err := e.Tools.InvokeTool(ctx, call.Name, args)
		if err != nil {
			return fmt.Errorf("calling function %q: %w", call.Name, err)
		}
		s.Messages = append(s.Messages, result)
		log.Info("    --> msg", "role", result.Role, "name", result.Name, "content", result.Content)
	}
}

// parseArguments decodes the argument object of a function call after
// sanitizing it.
func parseArguments(raw string) (map[string]any, error) {
	args := make(map[string]any)
	if err := json.Unmarshal([]byte(SanitizeArguments(raw)), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// SanitizeArguments escapes the literal newlines the model leaves inside a
// "contents" string value. Only the span from the first `"contents": "` to
// the last double quote is touched; any other damage is left for the model
// to correct.
func SanitizeArguments(raw string) string {
	begin := strings.Index(raw, contentsMarker)
	if begin == -1 {
		return raw
	}
	end := strings.LastIndex(raw, `"`)
	return raw[:begin] + strings.ReplaceAll(raw[begin:end], "\n", `\n`) + raw[end:]
}

// Complete implements Generator.
func (e *Engine) Complete(ctx context.Context, prompt string) (gollm.CompletionResponse, error) {
	ctx = e.withRecorder(ctx)
	s := e.Session

	llm := &gollm.AsyncClient{Client: e.LLM}
	resp, err := llm.Complete(ctx, &gollm.CompletionRequest{
		Model:       s.Model,
		Prompt:      prompt,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	journal.Record(ctx, journal.ActionCompletion, &gollm.RecordCompletionResponse{
		Text: resp.Response(),
		Raw:  resp.UsageMetadata(),
	})
	return resp, nil
}
