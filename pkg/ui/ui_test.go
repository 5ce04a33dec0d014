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

package ui

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kbserverapp/kbai/pkg/api"
)

type step struct{}

func (step) Name() string       { return "plan" }
func (step) PromptName() string { return "outline" }
func (step) UpdateGUI()         {}

func TestPlainOutput(t *testing.T) {
	var out bytes.Buffer
	u, err := NewTerminalUI(&out, Options{})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}

	u.ShowProgress(step{})
	u.ShowAnswer("Log of Step: plan : outline\n\n\n - done")
	u.ShowError(errors.New("boom"))
	u.ShowStats(api.Stats{PromptTokens: 500, CompletionTokens: 200, TotalTokens: 700, PromptCost: 0.005, CompletionCost: 0.006, TotalCost: 0.011})

	want := "  Asking the model (plan : outline)...\n" +
		"Log of Step: plan : outline\n\n\n - done\n" +
		"  Error: boom\n" +
		"  tokens: prompt=500 completion=200 total=700  cost: $0.0110 (prompt $0.0050, completion $0.0060)  elapsed: 0.0s\n"
	if out.String() != want {
		t.Errorf("unexpected output:\n%q\nwant:\n%q", out.String(), want)
	}
}

func TestMarkdownOutputKeepsText(t *testing.T) {
	var out bytes.Buffer
	u, err := NewTerminalUI(&out, Options{Markdown: true})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}
	u.ShowAnswer("Log of Step: plan : outline\n\n - wrote the plan")
	if !strings.Contains(out.String(), "wrote the plan") {
		t.Errorf("rendered answer lost its text: %q", out.String())
	}
}

func TestReadQuery(t *testing.T) {
	u, err := NewTerminalUI(io.Discard, Options{Input: strings.NewReader("first\n\n   \nsecond question\nexit\nnever read\n")})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}

	for _, want := range []string{"first", "second question"} {
		got, err := u.ReadQuery()
		if err != nil {
			t.Fatalf("ReadQuery: %v", err)
		}
		if got != want {
			t.Errorf("ReadQuery() = %q, want %q", got, want)
		}
	}
	if _, err := u.ReadQuery(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after exit, got %v", err)
	}
}

func TestReadQueryLastLineWithoutNewline(t *testing.T) {
	u, err := NewTerminalUI(io.Discard, Options{Input: strings.NewReader("only")})
	if err != nil {
		t.Fatalf("NewTerminalUI: %v", err)
	}
	got, err := u.ReadQuery()
	if err != nil || got != "only" {
		t.Fatalf("ReadQuery() = %q, %v", got, err)
	}
	if _, err := u.ReadQuery(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
