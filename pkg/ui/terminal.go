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

// Package ui prints generation results to a terminal and reads queries for
// the interactive loop.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"golang.org/x/term"
	"k8s.io/klog/v2"

	"github.com/kbserverapp/kbai/pkg/api"
)

// Options configures a TerminalUI.
type Options struct {
	// Markdown renders answers with glamour.
	Markdown bool
	// Color enables colored status lines.
	Color bool
	// Input, when set, is read line by line instead of using readline on the terminal.
	Input io.Reader
}

type TerminalUI struct {
	out              io.Writer
	markdownRenderer *glamour.TermRenderer
	color            bool

	input       *bufio.Reader
	rlInstance  *readline.Instance
	historyPath string
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func getCustomTerminalWidth() int {
	if widthStr := os.Getenv("KBAI_TERM_WIDTH"); widthStr != "" {
		if width, err := strconv.Atoi(widthStr); err == nil && width > 0 {
			return width
		}
		klog.Warningf("Invalid KBAI_TERM_WIDTH value %q, using default", widthStr)
	}
	return 0
}

func NewTerminalUI(out io.Writer, opt Options) (*TerminalUI, error) {
	u := &TerminalUI{
		out:         out,
		color:       opt.Color,
		historyPath: filepath.Join(os.TempDir(), "kbai_history"),
	}
	if opt.Input != nil {
		u.input = bufio.NewReader(opt.Input)
	}

	if opt.Markdown {
		options := []glamour.TermRendererOption{
			glamour.WithAutoStyle(),
			glamour.WithPreservedNewLines(),
			glamour.WithEmoji(),
		}
		if width := getCustomTerminalWidth(); width > 0 {
			options = append(options, glamour.WithWordWrap(width))
		}
		mdRenderer, err := glamour.NewTermRenderer(options...)
		if err != nil {
			return nil, fmt.Errorf("error initializing the markdown renderer: %w", err)
		}
		u.markdownRenderer = mdRenderer
	}

	return u, nil
}

func (u *TerminalUI) Close() error {
	if u.rlInstance != nil {
		if err := u.rlInstance.Close(); err != nil {
			return fmt.Errorf("closing readline instance: %w", err)
		}
	}
	return nil
}

// Print writes text with the given style options.
func (u *TerminalUI) Print(text string, styleOptions ...StyleOption) {
	s := &style{}
	for _, opt := range styleOptions {
		opt(s)
	}

	printText := text
	if s.renderMarkdown && u.markdownRenderer != nil && printText != "" {
		out, err := u.markdownRenderer.Render(printText)
		if err != nil {
			klog.Errorf("Error rendering markdown: %v", err)
		} else {
			printText = out
		}
	}

	if u.color && s.foreground != "" {
		code, ok := colorCodes[s.foreground]
		if !ok {
			klog.Info("foreground color not supported by TerminalUI", "color", s.foreground)
		} else {
			printText = lipgloss.NewStyle().Foreground(lipgloss.Color(code)).Render(printText)
		}
	}

	fmt.Fprint(u.out, printText)
	if !strings.HasSuffix(printText, "\n") {
		fmt.Fprintln(u.out)
	}
}

// ShowProgress is called before each model request of a step.
func (u *TerminalUI) ShowProgress(step api.Step) {
	u.Print(fmt.Sprintf("  Asking the model (%s : %s)...", step.Name(), step.PromptName()), Foreground(ColorGreen))
}

// ShowAnswer prints the answer transcript of a generation.
func (u *TerminalUI) ShowAnswer(answer string) {
	u.Print(answer, RenderMarkdown())
}

// ShowError prints an error.
func (u *TerminalUI) ShowError(err error) {
	u.Print("  Error: "+err.Error(), Foreground(ColorRed))
}

// ShowStats prints the running usage totals.
func (u *TerminalUI) ShowStats(stats api.Stats) {
	u.Print(fmt.Sprintf("  tokens: prompt=%.0f completion=%.0f total=%.0f  cost: $%.4f (prompt $%.4f, completion $%.4f)  elapsed: %.1fs",
		stats.PromptTokens, stats.CompletionTokens, stats.TotalTokens,
		stats.TotalCost, stats.PromptCost, stats.CompletionCost,
		stats.ElapsedTime), Foreground(ColorGray))
}

func (u *TerminalUI) readlineInstance() (*readline.Instance, error) {
	if u.rlInstance != nil {
		return u.rlInstance, nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     u.historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("creating readline instance: %w", err)
	}
	u.rlInstance = rl
	return rl, nil
}

// ReadQuery reads the next query. It returns io.EOF when the user is done:
// end of input, Ctrl+C, or "exit" / "quit".
func (u *TerminalUI) ReadQuery() (string, error) {
	for {
		var line string
		if u.input != nil {
			s, err := u.input.ReadString('\n')
			if err != nil && (!errors.Is(err, io.EOF) || s == "") {
				return "", err
			}
			line = s
		} else {
			rl, err := u.readlineInstance()
			if err != nil {
				return "", err
			}
			line, err = rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					return "", io.EOF
				}
				return "", err
			}
		}

		query := strings.TrimSpace(line)
		switch query {
		case "":
			continue
		case "exit", "quit":
			return "", io.EOF
		}
		return query, nil
	}
}
