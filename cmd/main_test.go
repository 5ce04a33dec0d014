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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/internal/mocks"
	"github.com/kbserverapp/kbai/pkg/agent"
	"github.com/kbserverapp/kbai/pkg/api"
	"github.com/kbserverapp/kbai/pkg/costs"
	"github.com/kbserverapp/kbai/pkg/journal"
	"github.com/kbserverapp/kbai/pkg/memory"
	"github.com/kbserverapp/kbai/pkg/session"
	"github.com/kbserverapp/kbai/pkg/tools"
	"github.com/kbserverapp/kbai/pkg/ui"
)

func TestResolveQueryFrom(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		hasStdin bool
		args     []string
		want     string
		wantErr  bool
	}{
		{name: "no input", want: ""},
		{name: "positional only", args: []string{"summarize notes"}, want: "summarize notes"},
		{name: "stdin only", stdin: "  summarize notes\n", hasStdin: true, want: "summarize notes"},
		{name: "positional and stdin", stdin: "line one\nline two\n", hasStdin: true, args: []string{"summarize"}, want: "summarize\nline one\nline two"},
		{name: "empty stdin", stdin: " \n", hasStdin: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveQueryFrom(strings.NewReader(tt.stdin), tt.hasStdin, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveQueryFrom() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveQueryFrom() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadConfiguration(t *testing.T) {
	var opt Options
	opt.InitDefaults()

	config := []byte(`
model: gpt-3.5-turbo
temperature: 0.5
mode: complete
memory: redis://localhost:6379/0
showStats: true
`)
	if err := opt.LoadConfiguration(config); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}

	want := Options{}
	want.InitDefaults()
	want.ModelID = "gpt-3.5-turbo"
	want.Temperature = 0.5
	want.Mode = "complete"
	want.MemoryURI = "redis://localhost:6379/0"
	want.ShowStats = true
	if diff := cmp.Diff(want, opt); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	if err := opt.LoadConfiguration([]byte("model: [")); err == nil {
		t.Errorf("expected error for malformed configuration")
	}
}

func TestExpandConfigPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := expandConfigPath(filepath.Join("{HOME}", ".config", "kbai", "config.yaml"))
	if err != nil {
		t.Fatalf("expandConfigPath: %v", err)
	}
	if want := filepath.Join(home, ".config", "kbai", "config.yaml"); got != want {
		t.Errorf("expandConfigPath() = %q, want %q", got, want)
	}
}

func TestBuildRootCommandFlags(t *testing.T) {
	var opt Options
	opt.InitDefaults()

	cmd, err := BuildRootCommand(&opt)
	if err != nil {
		t.Fatalf("BuildRootCommand: %v", err)
	}
	if err := cmd.PersistentFlags().Parse([]string{
		"--model", "gpt-4-32k",
		"--mode", "complete",
		"--max-tokens", "100",
		"--resume-session", "latest",
	}); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}

	if opt.ModelID != "gpt-4-32k" || opt.Mode != "complete" || opt.MaxTokens != 100 || opt.ResumeSession != "latest" {
		t.Errorf("flags not bound: %+v", opt)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	if diff := cmp.Diff([]string{"models", "sessions", "version"}, names); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "complete mode", mutate: func(o *Options) { o.Mode = "complete" }},
		{name: "unknown mode", mutate: func(o *Options) { o.Mode = "edit" }, wantErr: true},
		{name: "unknown output", mutate: func(o *Options) { o.Output = "html" }, wantErr: true},
		{name: "session file and resume", mutate: func(o *Options) {
			o.SessionFile = "s.json"
			o.ResumeSession = "latest"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opt Options
			opt.InitDefaults()
			tt.mutate(&opt)
			if err := opt.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildTurns(t *testing.T) {
	want := []*api.Message{
		{Role: api.RoleUser, Content: "plan the week"},
		{Role: api.RoleExec},
	}
	if diff := cmp.Diff(want, buildTurns("plan the week")); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintModels(t *testing.T) {
	var buf bytes.Buffer
	printModels(&buf, []string{"gpt-4", "whisper-1"}, costs.StaticTable{
		"gpt-4": {Input: 0.03, Output: 0.06},
	})

	want := "gpt-4\tinput=$0.03/1K\toutput=$0.06/1K\nwhisper-1\n"
	if got := buf.String(); got != want {
		t.Errorf("printModels() = %q, want %q", got, want)
	}
}

func TestSessionFileTarget(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	var opt Options
	opt.InitDefaults()
	opt.SessionFile = path
	opt.SystemPrompt = "You keep notes."

	target, err := newSessionTarget(opt)
	if err != nil {
		t.Fatalf("newSessionTarget: %v", err)
	}
	s, err := target.load(ctx, nil, opt)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Mode != session.ModeChat || len(s.Messages) != 1 || s.Messages[0].Role != api.RoleSystem {
		t.Fatalf("unexpected new session: %+v", s)
	}

	s.Files["notes"] = "a\nb"
	if err := target.save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	opt.ModelID = "gpt-3.5-turbo"
	reloaded, err := target.load(ctx, nil, opt)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(s.Serialize(), reloaded.Serialize()); diff != "" {
		t.Errorf("reloaded session mismatch (-want +got):\n%s", diff)
	}
}

func TestStoredSessionTarget(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var opt Options
	opt.InitDefaults()
	opt.SessionsDir = dir

	var buf bytes.Buffer
	if err := handleListSessions(opt, &buf); err != nil {
		t.Fatalf("handleListSessions: %v", err)
	}
	if got := buf.String(); got != "No sessions found.\n" {
		t.Errorf("empty listing = %q", got)
	}

	opt.NewSession = true
	target, err := newSessionTarget(opt)
	if err != nil {
		t.Fatalf("newSessionTarget: %v", err)
	}
	s, err := target.load(ctx, nil, opt)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := target.save(s); err != nil {
		t.Fatalf("save: %v", err)
	}
	id := target.id
	if id == "" {
		t.Fatalf("expected a session ID after save")
	}

	opt.NewSession = false
	opt.ResumeSession = "latest"
	resumed, err := newSessionTarget(opt)
	if err != nil {
		t.Fatalf("newSessionTarget(latest): %v", err)
	}
	if resumed.id != id {
		t.Errorf("latest session = %q, want %q", resumed.id, id)
	}

	buf.Reset()
	if err := handleListSessions(opt, &buf); err != nil {
		t.Fatalf("handleListSessions: %v", err)
	}
	if !strings.HasPrefix(buf.String(), id+"\t") {
		t.Errorf("listing %q does not start with %q", buf.String(), id)
	}

	buf.Reset()
	if err := handleDeleteSession(opt, id, &buf); err != nil {
		t.Fatalf("handleDeleteSession: %v", err)
	}
	opt.ResumeSession = id
	if _, err := newSessionTarget(opt); err == nil {
		t.Errorf("expected error resuming a deleted session")
	}
}

type completion string

func (c completion) Response() string   { return string(c) }
func (c completion) UsageMetadata() any { return nil }

func newTestEngine(t *testing.T, client gollm.Client, mode session.Mode) *agent.Engine {
	t.Helper()
	s, err := session.New(context.Background(), nil, session.Options{Model: "gpt-4", Mode: mode})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return &agent.Engine{
		LLM:      client,
		Session:  s,
		Tools:    tools.NewDefault(memory.NewInMemoryStore()),
		Costs:    costs.Default(),
		Recorder: &journal.MemoryRecorder{},
	}
}

func stopResponse(content string) *gollm.ChatResponse {
	return &gollm.ChatResponse{
		Choices: []gollm.Choice{{
			Message:      api.Message{Role: api.RoleAssistant, Content: content},
			FinishReason: gollm.FinishReasonStop,
		}},
		Usage: api.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}
}

func TestRunQueriesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ChatCompletion(gomock.Any(), gomock.Any()).Return(stopResponse("hello"), nil)

	engine := newTestEngine(t, client, session.ModeChat)
	var out bytes.Buffer
	terminal, err := ui.NewTerminalUI(&out, ui.Options{})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}

	var opt Options
	opt.InitDefaults()
	if err := runQueries(context.Background(), opt, engine, terminal, "say hello", false); err != nil {
		t.Fatalf("runQueries: %v", err)
	}

	want := "  Asking the model (kbai : query-1)...\nLog of Step: kbai : query-1\n\n\n - hello\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if engine.Session.Stats.TotalTokens != 12 {
		t.Errorf("total tokens = %v, want 12", engine.Session.Stats.TotalTokens)
	}
}

func TestRunQueriesInteractive(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	gomock.InOrder(
		client.EXPECT().ChatCompletion(gomock.Any(), gomock.Any()).Return(stopResponse("first"), nil),
		client.EXPECT().ChatCompletion(gomock.Any(), gomock.Any()).Return(stopResponse("second"), nil),
	)

	engine := newTestEngine(t, client, session.ModeChat)
	var out bytes.Buffer
	terminal, err := ui.NewTerminalUI(&out, ui.Options{Input: strings.NewReader("\nnext question\nexit\n")})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}

	var opt Options
	opt.InitDefaults()
	opt.ShowStats = true
	if err := runQueries(context.Background(), opt, engine, terminal, "first question", true); err != nil {
		t.Fatalf("runQueries: %v", err)
	}

	got := out.String()
	for _, want := range []string{"(kbai : query-1)", " - first", "(kbai : query-2)", " - second", "tokens: prompt=20 completion=4 total=24"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
	// user query, assistant reply, user query, assistant reply
	if len(engine.Session.Messages) != 4 {
		t.Errorf("history length = %d, want 4", len(engine.Session.Messages))
	}
}

func TestRunQueriesComplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().GenerateCompletion(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *gollm.CompletionRequest) (gollm.CompletionResponse, error) {
			if req.Prompt != "finish this" || req.MaxTokens != session.DefaultMaxTokens {
				t.Errorf("unexpected request: %+v", req)
			}
			return completion("done"), nil
		})

	engine := newTestEngine(t, client, session.ModeComplete)
	var out bytes.Buffer
	terminal, err := ui.NewTerminalUI(&out, ui.Options{})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}

	var opt Options
	opt.InitDefaults()
	opt.Mode = string(session.ModeComplete)
	if err := runQueries(context.Background(), opt, engine, terminal, "finish this", false); err != nil {
		t.Fatalf("runQueries: %v", err)
	}
	if got := out.String(); got != "done\n" {
		t.Errorf("output = %q, want %q", got, "done\n")
	}
}
