package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/evaluate"
	"github.com/pavelanni/examgen/internal/handler"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/router"
	"github.com/pavelanni/examgen/internal/store"
	"github.com/pavelanni/examgen/internal/synth"
	"github.com/pavelanni/examgen/internal/workflow"
)

const llmTimeoutDefault = 60 * time.Second

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examgen",
		Short: "Exam generation and evaluation service powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), evaluateCmd(), ingestCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db-dsn", "", "Database DSN: sqlite file URI or postgres URL (empty = local default)")
}

func addBackendFlags(f *pflag.FlagSet) {
	f.String("llm-provider", "openai", "Generation backend (openai, anthropic, gemini, mock for offline placeholder replies)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the generation backend")
	f.String("llm-model", "llama3.2", "Generation model name")
	f.Int("llm-max-tokens", 0, "Maximum tokens per completion (0 = provider default)")
	f.Float64("llm-temperature", 0.7, "Sampling temperature for OpenAI-compatible backends")
	f.Duration("llm-timeout", llmTimeoutDefault, "Timeout for a single backend call")
	f.String("embed-url", "", "Embedding API base URL (defaults to llm-url)")
	f.String("embed-key", "", "Embedding API key (defaults to llm-key)")
	f.String("embed-model", "nomic-embed-text", "Embedding model name")
	f.String("prompts-dir", "", "Directory overriding the built-in prompt templates")
	f.String("routing-policy", string(router.PerTopic), "Routing policy (per-topic, first-topic)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.Int64("max-upload", 32<<20, "Maximum reference document upload size in bytes")
	f.StringP("lang", "l", "en", "Default language for API messages (en, ru)")
	addStoreFlags(f)
	addBackendFlags(f)
	addLogFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store an exam, printing it as JSON",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringSliceP("topic", "t", nil, "Topic to cover (repeatable, required)")
	f.Int("mcq", 0, "Number of multiple-choice questions per topic")
	f.Int("text", 0, "Number of free-text questions per topic")
	f.Int("code", 0, "Number of coding questions per topic")
	f.StringP("difficulty", "d", string(model.DifficultyMedium), "Difficulty (easy, medium, hard)")
	addStoreFlags(f)
	addBackendFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score all saved drafts of an exam, printing the feedback as JSON",
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Exam identifier (required)")
	addStoreFlags(f)
	addBackendFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Index a reference document (pdf, txt, md), replacing the current one",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	addBackendFlags(f)
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam feedback as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Exam identifier (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStoreFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgen")
	v.AddConfigPath("/etc/examgen")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// configure builds the command's viper instance and applies its log settings.
func configure(cmd *cobra.Command) *viper.Viper {
	v := viperForCmd(cmd)
	setupLogging(v)
	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	s, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db-dsn"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func backendConfig(v *viper.Viper) llm.Config {
	key, modelName := v.GetString("llm-key"), v.GetString("llm-model")
	maxTokens := v.GetInt("llm-max-tokens")
	return llm.Config{
		Provider: strings.ToLower(strings.TrimSpace(v.GetString("llm-provider"))),
		OpenAI: llm.OpenAIConfig{
			APIKey:      key,
			BaseURL:     v.GetString("llm-url"),
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: v.GetFloat64("llm-temperature"),
		},
		Anthropic: llm.AnthropicConfig{APIKey: key, Model: modelName, MaxTokens: maxTokens},
		Gemini:    llm.GeminiConfig{APIKey: key, Model: modelName, MaxTokens: maxTokens},
		Timeout:   v.GetDuration("llm-timeout"),
	}
}

func embedConfig(v *viper.Viper) llm.EmbedConfig {
	cfg := llm.EmbedConfig{
		APIKey:  v.GetString("embed-key"),
		BaseURL: v.GetString("embed-url"),
		Model:   v.GetString("embed-model"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = v.GetString("llm-key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = v.GetString("llm-url")
	}
	return cfg
}

func loadPrompts(v *viper.Viper) (*prompts.Set, error) {
	dir := v.GetString("prompts-dir")
	if dir == "" {
		return prompts.Default(), nil
	}
	p, err := prompts.Load(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
	}
	slog.Info("loaded prompt templates", "dir", dir)
	return p, nil
}

// app wires the generation and evaluation pipeline over one store.
type app struct {
	store     *store.Store
	index     *index.Handle
	ingester  *index.Ingester
	generator *workflow.Service
	evaluator *evaluate.Service
	config    model.Config
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	policy, err := router.ParsePolicy(v.GetString("routing-policy"))
	if err != nil {
		return nil, err
	}
	p, err := loadPrompts(v)
	if err != nil {
		return nil, err
	}
	completer, err := llm.New(ctx, backendConfig(v))
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	s, err := openStore(ctx, v)
	if err != nil {
		return nil, err
	}

	handle := &index.Handle{}
	ingester := index.NewIngester(handle, llm.NewOpenAIEmbedder(embedConfig(v)), s)
	if err := ingester.Restore(ctx); err != nil {
		s.Close()
		return nil, err
	}

	backends := router.Backends{Model: completer, Prompts: p}
	wf := workflow.New(handle, synth.New(backends, p), policy)
	ev := evaluate.NewEvaluator(backends, p)

	return &app{
		store:     s,
		index:     handle,
		ingester:  ingester,
		generator: workflow.NewService(wf, s),
		evaluator: evaluate.NewService(ev, handle, s, s, s),
		config: model.Config{
			RoutingPolicy:  string(policy),
			MaxUploadBytes: v.GetInt64("max-upload"),
			Lang:           v.GetString("lang"),
		},
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := configure(cmd)
	ctx := cmd.Context()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	h := handler.New(a.store, a.generator, a.evaluator, a.ingester, a.index, a.config)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	var document string
	if snap := a.index.Snapshot(); snap != nil {
		document = snap.Info().Name
	}
	slog.Info("starting server",
		"addr", addr,
		"provider", v.GetString("llm-provider"),
		"model", v.GetString("llm-model"),
		"db_driver", v.GetString("db-driver"),
		"routing_policy", a.config.RoutingPolicy,
		"lang", lang,
		"document", document,
	)
	return http.ListenAndServe(addr, r)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	v := configure(cmd)
	ctx := cmd.Context()

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	e, err := a.generator.Generate(ctx, model.GenerationRequest{
		Topics:     v.GetStringSlice("topic"),
		MCQCount:   v.GetInt("mcq"),
		TextCount:  v.GetInt("text"),
		CodeCount:  v.GetInt("code"),
		Difficulty: model.Difficulty(v.GetString("difficulty")),
	})
	if err != nil {
		return fmt.Errorf("generate exam: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), e)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	v := configure(cmd)
	ctx := cmd.Context()

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	sets, err := a.evaluator.EvaluateExam(ctx, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("evaluate exam: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), sets)
}

func runIngest(cmd *cobra.Command, args []string) error {
	v := configure(cmd)
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	info, err := a.ingester.Ingest(ctx, args[0], data)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}
	return writeJSON(cmd.OutOrStdout(), info)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := configure(cmd)
	ctx := cmd.Context()

	s, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer s.Close()

	export, err := s.ExportFeedback(ctx, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export feedback: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeJSON(w, export); err != nil {
		return err
	}
	slog.Info("exported feedback", "exam_id", export.ExamID, "learners", len(export.Results))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
