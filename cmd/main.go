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
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/kbserverapp/kbai/gollm"
	"github.com/kbserverapp/kbai/pkg/agent"
	"github.com/kbserverapp/kbai/pkg/api"
	"github.com/kbserverapp/kbai/pkg/costs"
	"github.com/kbserverapp/kbai/pkg/journal"
	"github.com/kbserverapp/kbai/pkg/memory"
	"github.com/kbserverapp/kbai/pkg/session"
	"github.com/kbserverapp/kbai/pkg/tools"
	"github.com/kbserverapp/kbai/pkg/ui"
)

// Using the defaults from goreleaser as per https://goreleaser.com/cookbooks/using-main.version/
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func BuildRootCommand(opt *Options) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "kbai [query]",
		Short: "Drive a tool-augmented conversation with an OpenAI model",
		Long:  "kbai sends a query to a chat model that can read and write named files in a memory store, following its function calls until it produces an answer. Without a query it starts an interactive loop.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunRootCommand(cmd.Context(), *opt, args)
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of kbai",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List the models available to the configured API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsCommand(cmd.Context(), *opt, cmd.OutOrStdout())
		},
	})

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleListSessions(*opt, cmd.OutOrStdout())
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleDeleteSession(*opt, args[0], cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(sessionsCmd)

	if err := opt.bindCLIFlags(rootCmd.PersistentFlags()); err != nil {
		return nil, err
	}
	return rootCmd, nil
}

type Options struct {
	ProviderID string `json:"llmProvider,omitempty"`
	ModelID    string `json:"model,omitempty"`

	// Temperature and MaxTokens are passed to the model. MaxTokens only
	// applies in complete mode.
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`

	// Mode is "chat" (function-calling loop) or "complete" (single-shot completion).
	Mode string `json:"mode,omitempty"`

	// SystemPrompt is prepended to the history of a new session.
	SystemPrompt string `json:"systemPrompt,omitempty"`

	// StepName labels the answer transcript of each generation.
	StepName string `json:"stepName,omitempty"`

	// MemoryURI selects the store behind read_file / write_file:
	// memory://, file:///dir, a bare directory path, or redis://host:port/db.
	MemoryURI string `json:"memory,omitempty"`

	// CostTablePath is a YAML price list merged over the built-in one.
	CostTablePath string `json:"costTable,omitempty"`

	TracePath string `json:"tracePath,omitempty"`

	// SkipVerifySSL is a flag to skip verifying the SSL certificate of the LLM provider.
	SkipVerifySSL bool `json:"skipVerifySSL,omitempty"`

	// Quiet flag indicates if kbai should run in non-interactive mode.
	// It requires a query to be provided as a positional argument or on stdin.
	Quiet bool `json:"quiet,omitempty"`

	// Output is "auto", "markdown" or "plain".
	Output string `json:"output,omitempty"`

	// ShowStats prints token and cost totals after each generation.
	ShowStats bool `json:"showStats,omitempty"`

	// Session persistence options
	SessionFile   string `json:"sessionFile,omitempty"`
	SessionsDir   string `json:"sessionsDir,omitempty"`
	ResumeSession string `json:"resumeSession,omitempty"`
	NewSession    bool   `json:"newSession,omitempty"`
}

var defaultConfigPaths = []string{
	filepath.Join("{CONFIG}", "kbai", "config.yaml"),
	filepath.Join("{HOME}", ".config", "kbai", "config.yaml"),
}

func (o *Options) InitDefaults() {
	o.ProviderID = "openai"
	o.ModelID = session.DefaultModel
	o.Temperature = 0
	o.MaxTokens = session.DefaultMaxTokens
	o.Mode = string(session.ModeChat)
	o.SystemPrompt = ""
	o.StepName = "kbai"
	o.MemoryURI = "memory://"
	o.CostTablePath = ""
	o.TracePath = filepath.Join(os.TempDir(), "kbai-trace.yaml")
	o.SkipVerifySSL = false
	o.Quiet = false
	o.Output = "auto"
	o.ShowStats = false

	o.SessionFile = ""
	o.SessionsDir = ""
	o.ResumeSession = ""
	o.NewSession = false
}

func (o *Options) LoadConfiguration(b []byte) error {
	if err := yaml.Unmarshal(b, &o); err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}
	return nil
}

// expandConfigPath replaces the {CONFIG} and {HOME} placeholders.
func expandConfigPath(configPath string) (string, error) {
	p := configPath
	if strings.Contains(p, "{CONFIG}") {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("getting user config directory (for config file path %q): %w", configPath, err)
		}
		p = strings.ReplaceAll(p, "{CONFIG}", configDir)
	}
	if strings.Contains(p, "{HOME}") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory (for config file path %q): %w", configPath, err)
		}
		p = strings.ReplaceAll(p, "{HOME}", homeDir)
	}
	return filepath.Clean(p), nil
}

func (o *Options) LoadConfigurationFile() error {
	for _, configPath := range defaultConfigPaths {
		p, err := expandConfigPath(configPath)
		if err != nil {
			return err
		}
		configBytes, err := os.ReadFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: could not load defaults from %q: %v\n", p, err)
			}
			continue
		}
		if len(configBytes) > 0 {
			if err := o.LoadConfiguration(configBytes); err != nil {
				fmt.Fprintf(os.Stderr, "warning: error loading configuration from %q: %v\n", p, err)
			}
		}
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		// restore default behavior for a second signal
		signal.Stop(make(chan os.Signal))
		cancel()
		klog.Flush()
		fmt.Fprintf(os.Stderr, "\nReceived signal, shutting down... (press Ctrl+C again to force)\n")
	}()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// klog setup must happen before Cobra parses any flags

	// add commandline flags for logging
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)

	klogFlags.Set("logtostderr", "false")
	klogFlags.Set("log_file", filepath.Join(os.TempDir(), "kbai.log"))

	defer klog.Flush()

	var opt Options

	opt.InitDefaults()

	// load YAML config values
	if err := opt.LoadConfigurationFile(); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}

	rootCmd, err := BuildRootCommand(&opt)
	if err != nil {
		return err
	}

	// We add just the klog flags we want, not all the klog flags (there are a lot, most of them are very niche)
	rootCmd.PersistentFlags().AddGoFlag(klogFlags.Lookup("v"))
	rootCmd.PersistentFlags().AddGoFlag(klogFlags.Lookup("alsologtostderr"))

	// do this early, before the third-party code logs anything.
	redirectStdLogToKlog()

	return rootCmd.ExecuteContext(ctx)
}

func (opt *Options) bindCLIFlags(f *pflag.FlagSet) error {
	f.StringVar(&opt.ProviderID, "llm-provider", opt.ProviderID, "language model provider (openai, openai-compatible)")
	f.StringVar(&opt.ModelID, "model", opt.ModelID, "language model e.g. gpt-4, gpt-3.5-turbo")
	f.Float64Var(&opt.Temperature, "temperature", opt.Temperature, "sampling temperature")
	f.IntVar(&opt.MaxTokens, "max-tokens", opt.MaxTokens, "maximum tokens to generate in complete mode")
	f.StringVar(&opt.Mode, "mode", opt.Mode, "generation mode. Supported values: chat, complete")
	f.StringVar(&opt.SystemPrompt, "system-prompt", opt.SystemPrompt, "system message for new sessions")
	f.StringVar(&opt.StepName, "step-name", opt.StepName, "name shown in the answer transcript")

	f.StringVar(&opt.MemoryURI, "memory", opt.MemoryURI, "memory store for read_file/write_file: memory://, file:///dir, or redis://host:port/db")
	f.StringVar(&opt.CostTablePath, "cost-table", opt.CostTablePath, "path to a YAML file with per-model prices per 1000 tokens")
	f.StringVar(&opt.TracePath, "trace-path", opt.TracePath, "path to the trace file")
	f.BoolVar(&opt.SkipVerifySSL, "skip-verify-ssl", opt.SkipVerifySSL, "skip verifying the SSL certificate of the LLM provider")

	f.BoolVar(&opt.Quiet, "quiet", opt.Quiet, "run in non-interactive mode, requires a query to be provided as a positional argument or on stdin")
	f.StringVar(&opt.Output, "output", opt.Output, "answer format. Supported values: auto, markdown, plain")
	f.BoolVar(&opt.ShowStats, "show-stats", opt.ShowStats, "print token and cost totals after each generation")

	f.StringVar(&opt.SessionFile, "session-file", opt.SessionFile, "load the session from this JSON file if it exists, and save it there on exit")
	f.StringVar(&opt.SessionsDir, "sessions-dir", opt.SessionsDir, "directory holding stored sessions (default ~/.kbai/sessions)")
	f.StringVar(&opt.ResumeSession, "resume-session", opt.ResumeSession, "ID of stored session to resume (use 'latest' for the most recent session)")
	f.BoolVar(&opt.NewSession, "new-session", opt.NewSession, "create a new stored session")

	return nil
}

func (opt *Options) validate() error {
	switch session.Mode(opt.Mode) {
	case session.ModeChat, session.ModeComplete:
	default:
		return fmt.Errorf("mode %q is not known", opt.Mode)
	}
	switch opt.Output {
	case "auto", "markdown", "plain":
	default:
		return fmt.Errorf("output format %q is not known", opt.Output)
	}
	if opt.SessionFile != "" && (opt.ResumeSession != "" || opt.NewSession) {
		return fmt.Errorf("--session-file cannot be combined with --resume-session or --new-session")
	}
	return nil
}

func newLLMClient(ctx context.Context, opt Options) (gollm.Client, error) {
	var clientOpts []gollm.Option
	if opt.SkipVerifySSL {
		clientOpts = append(clientOpts, gollm.WithSkipVerifySSL())
	}
	client, err := gollm.NewClient(ctx, opt.ProviderID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return client, nil
}

func loadCostTable(opt Options) (costs.StaticTable, error) {
	if opt.CostTablePath == "" {
		return costs.Default(), nil
	}
	return costs.LoadTable(opt.CostTablePath)
}

func RunRootCommand(ctx context.Context, opt Options, args []string) error {
	if err := opt.validate(); err != nil {
		return err
	}

	// After reading stdin, it is consumed
	hasInputData, err := hasStdInData()
	if err != nil {
		return fmt.Errorf("failed to check if stdin has data: %w", err)
	}

	query, err := resolveQueryInput(hasInputData, args)
	if err != nil {
		return fmt.Errorf("failed to resolve query input %w", err)
	}
	interactive := !opt.Quiet && !hasInputData && ui.IsTerminal(os.Stdin)
	if query == "" && !interactive {
		return fmt.Errorf("a query is required when running non-interactively")
	}
	if session.Mode(opt.Mode) == session.ModeComplete && query == "" {
		return fmt.Errorf("complete mode requires a query")
	}

	klog.Info("Application started", "pid", os.Getpid())

	var recorder journal.Recorder
	if opt.TracePath != "" {
		fileRecorder, err := journal.NewFileRecorder(opt.TracePath)
		if err != nil {
			return fmt.Errorf("creating trace recorder: %w", err)
		}
		recorder = fileRecorder
	} else {
		recorder = &journal.LogRecorder{}
	}
	defer recorder.Close()
	ctx = journal.ContextWithRecorder(ctx, recorder)

	llmClient, err := newLLMClient(ctx, opt)
	if err != nil {
		return err
	}
	defer llmClient.Close()

	store, err := memory.Open(ctx, opt.MemoryURI)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	table, err := loadCostTable(opt)
	if err != nil {
		return err
	}

	target, err := newSessionTarget(opt)
	if err != nil {
		return err
	}
	sess, err := target.load(ctx, llmClient, opt)
	if err != nil {
		return err
	}

	output := opt.Output
	if output == "auto" {
		output = "plain"
		if ui.IsTerminal(os.Stdout) {
			output = "markdown"
		}
	}
	uiOpts := ui.Options{
		Markdown: output == "markdown",
		Color:    ui.IsTerminal(os.Stdout),
	}
	if hasInputData {
		// stdin already consumed; interactive input is not available.
		uiOpts.Input = strings.NewReader("")
	}
	terminal, err := ui.NewTerminalUI(os.Stdout, uiOpts)
	if err != nil {
		return fmt.Errorf("creating terminal UI: %w", err)
	}
	defer terminal.Close()

	engine := &agent.Engine{
		LLM:      llmClient,
		Session:  sess,
		Tools:    tools.NewDefault(store),
		Costs:    table,
		Recorder: recorder,
	}

	runErr := runQueries(ctx, opt, engine, terminal, query, interactive)
	if err := target.save(sess); err != nil {
		if runErr != nil {
			return errors.Join(runErr, err)
		}
		return err
	}
	return runErr
}

// runQueries answers the initial query, then keeps reading queries while interactive.
func runQueries(ctx context.Context, opt Options, engine *agent.Engine, terminal *ui.TerminalUI, query string, interactive bool) error {
	if session.Mode(opt.Mode) == session.ModeComplete {
		resp, err := engine.Complete(ctx, query)
		if err != nil {
			return fmt.Errorf("running completion: %w", err)
		}
		terminal.ShowAnswer(resp.Response())
		return nil
	}

	round := 0
	for {
		if query != "" {
			round++
			step := &agent.NamedStep{
				StepName: opt.StepName,
				Prompt:   fmt.Sprintf("query-%d", round),
			}
			step.OnProgress = func() { terminal.ShowProgress(step) }

			answer, err := engine.Generate(ctx, step, buildTurns(query))
			if err != nil {
				if !interactive {
					return fmt.Errorf("running generation: %w", err)
				}
				terminal.ShowError(err)
			} else {
				terminal.ShowAnswer(answer)
			}
			if opt.ShowStats {
				terminal.ShowStats(engine.Session.Stats)
			}
		}
		if !interactive {
			return nil
		}

		var err error
		query, err = terminal.ReadQuery()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading query: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// buildTurns turns a user query into pending turns: the query followed by an exec turn.
func buildTurns(query string) []*api.Message {
	return []*api.Message{
		{Role: api.RoleUser, Content: query},
		{Role: api.RoleExec},
	}
}

// sessionTarget is where the session is loaded from and saved to.
type sessionTarget struct {
	file    string
	manager *session.Manager
	id      string
}

func newSessionTarget(opt Options) (*sessionTarget, error) {
	if opt.SessionFile != "" {
		return &sessionTarget{file: opt.SessionFile}, nil
	}
	if !opt.NewSession && opt.ResumeSession == "" {
		return &sessionTarget{}, nil
	}
	manager, err := session.NewManager(opt.SessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	t := &sessionTarget{manager: manager}
	switch {
	case opt.NewSession:
	case opt.ResumeSession == "latest":
		latest, err := manager.Latest()
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to get latest session: %w", err)
		}
		if latest != nil {
			t.id = latest.ID
		}
	default:
		if _, err := manager.Find(opt.ResumeSession); err != nil {
			return nil, fmt.Errorf("session %s not found: %w", opt.ResumeSession, err)
		}
		t.id = opt.ResumeSession
	}
	return t, nil
}

func newSessionOptions(opt Options) session.Options {
	o := session.Options{
		Model:       opt.ModelID,
		Temperature: opt.Temperature,
		MaxTokens:   opt.MaxTokens,
		Mode:        session.Mode(opt.Mode),
	}
	if opt.SystemPrompt != "" {
		o.Messages = []*api.Message{{Role: api.RoleSystem, Content: opt.SystemPrompt}}
	}
	return o
}

func (t *sessionTarget) load(ctx context.Context, checker session.ModelChecker, opt Options) (*session.Session, error) {
	switch {
	case t.file != "":
		if _, err := os.Stat(t.file); err == nil {
			klog.Infof("Loading session from %s", t.file)
			return session.LoadFile(ctx, checker, t.file)
		}
	case t.manager != nil && t.id != "":
		s, err := t.manager.Load(ctx, checker, t.id)
		if err != nil {
			return nil, err
		}
		journal.Record(ctx, journal.ActionSessionLoaded, map[string]string{"id": t.id})
		return s, nil
	}
	return session.New(ctx, checker, newSessionOptions(opt))
}

func (t *sessionTarget) save(s *session.Session) error {
	switch {
	case t.file != "":
		return s.SaveFile(t.file)
	case t.manager != nil:
		id, err := t.manager.Save(s, t.id)
		if err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		if t.id == "" {
			klog.Infof("Created new session: %s", id)
		}
		t.id = id
	}
	return nil
}

func runModelsCommand(ctx context.Context, opt Options, out io.Writer) error {
	client, err := newLLMClient(ctx, opt)
	if err != nil {
		return err
	}
	defer client.Close()

	table, err := loadCostTable(opt)
	if err != nil {
		return err
	}

	models, err := gollm.NewModelCatalog(client).Models(ctx)
	if err != nil {
		return err
	}
	printModels(out, models, table)
	return nil
}

func printModels(out io.Writer, models []string, table costs.Table) {
	for _, model := range models {
		if p, err := table.Lookup(model); err == nil {
			fmt.Fprintf(out, "%s\tinput=$%g/1K\toutput=$%g/1K\n", model, p.Input, p.Output)
		} else {
			fmt.Fprintf(out, "%s\n", model)
		}
	}
}

// handleListSessions lists all available sessions with their metadata.
func handleListSessions(opt Options, out io.Writer) error {
	manager, err := session.NewManager(opt.SessionsDir)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	sessionList, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessionList) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}
	for _, s := range sessionList {
		fmt.Fprintln(out, s.String())
	}
	return nil
}

// handleDeleteSession deletes a session by ID.
func handleDeleteSession(opt Options, sessionID string, out io.Writer) error {
	manager, err := session.NewManager(opt.SessionsDir)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	if err := manager.Delete(sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Fprintf(out, "Session %s deleted successfully.\n", sessionID)
	return nil
}

// Redirect standard log output to our custom klog writer
func redirectStdLogToKlog() {
	log.SetOutput(klogWriter{})

	// Disable standard log's prefixes (date, time, file info)
	// because klog will add its own more detailed prefix.
	log.SetFlags(0)
}

// Define a custom writer that forwards messages to klog.Warning
type klogWriter struct{}

// Implement the io.Writer interface
func (writer klogWriter) Write(data []byte) (n int, err error) {
	// We trim the trailing newline because klog adds its own.
	message := string(bytes.TrimSuffix(data, []byte("\n")))
	klog.Warning(message)
	return len(data), nil
}

func hasStdInData() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("checking stdin: %w", err)
	}
	return (stat.Mode() & os.ModeCharDevice) == 0, nil
}

// resolveQueryInput determines the query input from positional args and/or stdin.
// It supports:
// - 1 positional arg only -> kbai "summarize notes"
// - stdin only -> echo "summarize notes" | kbai
// - 1 positional arg + stdin (combined) -> kbai "summarize" <<< "notes"
// As default no positional arg nor stdin
func resolveQueryInput(hasStdInData bool, args []string) (string, error) {
	return resolveQueryFrom(os.Stdin, hasStdInData, args)
}

func resolveQueryFrom(stdin io.Reader, hasStdInData bool, args []string) (string, error) {
	switch {
	case len(args) == 1 && !hasStdInData:
		return args[0], nil

	case len(args) == 1 && hasStdInData:
		var b strings.Builder
		b.WriteString(args[0])
		b.WriteString("\n")

		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			b.WriteString(scanner.Text())
			b.WriteString("\n")
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		query := strings.TrimSpace(b.String())
		if query == "" {
			return "", fmt.Errorf("no query provided from stdin")
		}
		return query, nil

	case len(args) == 0 && hasStdInData:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		query := strings.TrimSpace(string(b))
		if query == "" {
			return "", fmt.Errorf("no query provided from stdin")
		}
		return query, nil

	default:
		return "", nil
	}
}
