// Package main provides the CLI entrypoint for typestream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/typestream/internal/api"
	"github.com/verte-zerg/typestream/internal/client"
	"github.com/verte-zerg/typestream/internal/config"
	"github.com/verte-zerg/typestream/internal/generator"
	"github.com/verte-zerg/typestream/internal/model"
	"github.com/verte-zerg/typestream/internal/session"
	"github.com/verte-zerg/typestream/internal/stats"
	"github.com/verte-zerg/typestream/internal/store"
	"github.com/verte-zerg/typestream/internal/stream"
	"github.com/verte-zerg/typestream/internal/telemetry"
	"github.com/verte-zerg/typestream/internal/tui"
	"github.com/verte-zerg/typestream/internal/wordlist"
)

const (
	defaultServerURL     = "http://localhost:8080"
	defaultAddr          = ":8080"
	defaultSessionTTL    = 30 * time.Minute
	defaultLogLevel      = "info"
	defaultLang          = "en"
	defaultCaps          = 0.0
	defaultPunct         = 0.0
	defaultResultsLimit  = 20
	defaultTrendWindow   = 5
	healthCheckTimeout   = 3 * time.Second
	telemetryStopTimeout = 5 * time.Second
)

const defaultPunctSet = ".,!?;:\"'{}()[]-=/<>`"

var (
	practiceServer      string
	practiceWords       int
	practiceMaxAttempts int

	serveAddr         string
	serveSessionTTL   time.Duration
	serveIdleTimeout  time.Duration
	serveResultsDB    string
	serveLogLevel     string
	serveMinWords     int
	serveMaxWords     int
	serveDefaultWords int
	serveWordList     string
	serveLang         string
	serveCaps         float64
	servePunct        float64
	servePunctSet     string
	serveOTelEndpoint string
	serveOTelEnabled  bool

	resultsServer string
	resultsLimit  int
	resultsWindow int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "typestream",
		Short:         "Real-time typing practice",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.Flags().StringVar(&practiceServer, "server", defaultServerURL, "server base URL")
	rootCmd.Flags().IntVar(&practiceWords, "words", api.DefaultWordCount, "words per text")
	rootCmd.Flags().IntVar(&practiceMaxAttempts, "max-attempts", client.DefaultMaxAttempts, "reconnect attempts before giving up")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "server", &practiceServer, fileCfg.Practice.Server)
	applyIntConfig(cmd, "words", &practiceWords, fileCfg.Practice.Words)
	applyIntConfig(cmd, "max-attempts", &practiceMaxAttempts, fileCfg.Practice.MaxAttempts)

	cfg := tui.Config{
		Words:       practiceWords,
		MaxAttempts: practiceMaxAttempts,
	}
	if err := validatePracticeConfig(cfg); err != nil {
		return err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("practice needs an interactive terminal")
	}

	apiClient, err := client.NewAPI(practiceServer, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), healthCheckTimeout)
	err = apiClient.Health(ctx)
	cancel()
	if err != nil {
		return serverUnreachableError(practiceServer, err)
	}

	program := tea.NewProgram(tui.NewModel(cfg, apiClient, nil), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	if m, ok := final.(*tui.Model); ok && m.Err() != nil {
		logErrf("failed to start session: %v\n", m.Err())
		logErrln("Check the server with: typestream results --server", practiceServer)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the practice server",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", defaultSessionTTL, "drop sessions idle for this long (0 keeps them)")
	cmd.Flags().DurationVar(&serveIdleTimeout, "idle-timeout", stream.DefaultIdleTimeout, "close connections idle for this long (0 disables)")
	cmd.Flags().StringVar(&serveResultsDB, "results-db", store.MemoryPath, "results database path")
	cmd.Flags().StringVar(&serveLogLevel, "log-level", defaultLogLevel, "log level (trace, debug, info, warn, error)")
	cmd.Flags().IntVar(&serveMinWords, "min-words", api.DefaultMinWords, "smallest accepted word count")
	cmd.Flags().IntVar(&serveMaxWords, "max-words", api.DefaultMaxWords, "largest accepted word count")
	cmd.Flags().IntVar(&serveDefaultWords, "default-words", api.DefaultWordCount, "word count when the request has none")
	cmd.Flags().StringVar(&serveWordList, "wordlist", "", "word list file (default: built-in list)")
	cmd.Flags().StringVar(&serveLang, "lang", defaultLang, "word list language")
	cmd.Flags().Float64Var(&serveCaps, "caps", defaultCaps, "probability of capitalized first letter (0-1)")
	cmd.Flags().Float64Var(&servePunct, "punct", defaultPunct, "punctuation probability per word (0-1)")
	cmd.Flags().StringVar(&servePunctSet, "punct-set", defaultPunctSet, "punctuation set")
	cmd.Flags().StringVar(&serveOTelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint URL")
	cmd.Flags().BoolVar(&serveOTelEnabled, "otel-enabled", false, "export traces to the OTLP endpoint")
	return cmd
}

type serverSettings struct {
	addr         string
	sessionTTL   time.Duration
	idleTimeout  time.Duration
	resultsDB    string
	logLevel     string
	minWords     int
	maxWords     int
	defaultWords int
	wordList     string
	text         model.Config
	otelEndpoint string
	otelEnabled  bool
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	envCfg, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	srvCfg := envCfg.Overlay(fileCfg.Server)
	applyStringConfig(cmd, "addr", &serveAddr, srvCfg.Addr)
	applyDurationConfig(cmd, "session-ttl", &serveSessionTTL, srvCfg.SessionTTL)
	applyDurationConfig(cmd, "idle-timeout", &serveIdleTimeout, srvCfg.IdleTimeout)
	applyStringConfig(cmd, "results-db", &serveResultsDB, srvCfg.ResultsDB)
	applyStringConfig(cmd, "log-level", &serveLogLevel, srvCfg.LogLevel)
	applyIntConfig(cmd, "min-words", &serveMinWords, srvCfg.MinWords)
	applyIntConfig(cmd, "max-words", &serveMaxWords, srvCfg.MaxWords)
	applyIntConfig(cmd, "default-words", &serveDefaultWords, srvCfg.DefaultWords)
	applyStringConfig(cmd, "wordlist", &serveWordList, srvCfg.WordList)
	applyStringConfig(cmd, "lang", &serveLang, srvCfg.Lang)
	applyFloatConfig(cmd, "caps", &serveCaps, srvCfg.CapsPct)
	applyFloatConfig(cmd, "punct", &servePunct, srvCfg.PunctPct)
	applyStringConfig(cmd, "punct-set", &servePunctSet, srvCfg.PunctSet)
	applyStringConfig(cmd, "otel-endpoint", &serveOTelEndpoint, srvCfg.OTelEndpoint)
	applyBoolConfig(cmd, "otel-enabled", &serveOTelEnabled, srvCfg.OTelEnabled)

	cfg := serverSettings{
		addr:         serveAddr,
		sessionTTL:   serveSessionTTL,
		idleTimeout:  serveIdleTimeout,
		resultsDB:    serveResultsDB,
		logLevel:     serveLogLevel,
		minWords:     serveMinWords,
		maxWords:     serveMaxWords,
		defaultWords: serveDefaultWords,
		wordList:     serveWordList,
		text: model.Config{
			Lang:     serveLang,
			CapsPct:  serveCaps,
			PunctPct: servePunct,
			PunctSet: servePunctSet,
		},
		otelEndpoint: serveOTelEndpoint,
		otelEnabled:  serveOTelEnabled,
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "typestream",
		Level:  hclog.LevelFromString(cfg.logLevel),
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{Endpoint: cfg.otelEndpoint, Enabled: cfg.otelEnabled})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), telemetryStopTimeout)
		defer cancel()
		if err := shutdownTelemetry(stopCtx); err != nil {
			logger.Warn("failed to flush telemetry", "error", err)
		}
	}()

	wordPath := resolveWordListPath(cfg.text.Lang, cfg.wordList)
	words, err := wordlist.Resolve(wordPath, cfg.text.Lang)
	if err != nil {
		return err
	}

	results, err := store.Open(cfg.resultsDB)
	if err != nil {
		return fmt.Errorf("failed to open results db: %w", err)
	}
	defer func() {
		if cerr := results.Close(); cerr != nil {
			logger.Warn("failed to close results db", "error", cerr)
		}
	}()

	sessions := session.NewMemoryStore()
	handler := stream.NewHandler(sessions,
		stream.WithLogger(logger.Named("stream")),
		stream.WithResults(results),
		stream.WithIdleTimeout(cfg.idleTimeout),
	)
	source := generator.NewSource(generator.New(), words, cfg.text)
	srv, err := api.New(api.Config{
		Addr:         cfg.addr,
		MinWords:     cfg.minWords,
		MaxWords:     cfg.maxWords,
		DefaultWords: cfg.defaultWords,
	}, sessions, source, handler,
		api.WithLogger(logger.Named("api")),
		api.WithResults(results),
	)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	if cfg.sessionTTL > 0 {
		go session.RunJanitor(ctx, sessions, cfg.sessionTTL, logger.Named("janitor"), handler.Disconnect)
	}
	logger.Info("starting", "words", len(words), "lang", cfg.text.Lang, "results_db", cfg.resultsDB)
	return srv.ListenAndServe(ctx)
}

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show recent results",
		Args:  cobra.NoArgs,
		RunE:  runResultsCmd,
	}
	cmd.Flags().StringVar(&resultsServer, "server", defaultServerURL, "server base URL")
	cmd.Flags().IntVar(&resultsLimit, "last", defaultResultsLimit, "number of recent results")
	cmd.Flags().IntVar(&resultsWindow, "window", defaultTrendWindow, "moving average window for the trend")
	return cmd
}

func runResultsCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "server", &resultsServer, fileCfg.Practice.Server)
	if resultsLimit <= 0 {
		return fmt.Errorf("--last must be > 0")
	}
	if resultsWindow <= 0 {
		return fmt.Errorf("--window must be > 0")
	}

	apiClient, err := client.NewAPI(resultsServer, nil)
	if err != nil {
		return err
	}
	res, err := apiClient.Results(cmd.Context(), resultsLimit)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to load results: %w", err)
		}
		return serverUnreachableError(resultsServer, err)
	}

	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, res.Summary); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderTrend(out, res.Results, resultsWindow, terminalWidth()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderResults(out, res.Results); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target, value *time.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# typestream configuration
# Uncomment a value to enable it.
# Precedence: CLI flags > TYPESTREAM_* environment > this file > defaults.

[server]
# addr = %q               # Listen address
# session_ttl = %q          # Drop sessions idle for this long ("0s" keeps them)
# idle_timeout = %q         # Close connections idle for this long
# results_db = %q     # Results database; a file path keeps history, e.g. %q
# log_level = %q          # trace, debug, info, warn, error
# min_words = %d             # Smallest accepted word count
# max_words = %d            # Largest accepted word count
# default_words = %d         # Word count when a request has none
# wordlist = ""              # Word list file (default: built-in list)
# lang = %q                # Word list language
# caps = %.2f               # Probability of capitalized first letter (0-1)
# punct = %.2f              # Punctuation probability per word (0-1)
# punct_set = %q
# otel_endpoint = ""         # OTLP/HTTP trace endpoint URL
# otel_enabled = false

[practice]
# server = %q  # Server base URL
# words = %d                 # Words per text
# max-attempts = %d           # Reconnect attempts before giving up
`,
		defaultAddr,
		defaultSessionTTL.String(),
		stream.DefaultIdleTimeout.String(),
		store.MemoryPath,
		config.DefaultResultsPath(),
		defaultLogLevel,
		api.DefaultMinWords,
		api.DefaultMaxWords,
		api.DefaultWordCount,
		defaultLang,
		defaultCaps,
		defaultPunct,
		defaultPunctSet,
		defaultServerURL,
		api.DefaultWordCount,
		client.DefaultMaxAttempts,
	)
}

func validatePracticeConfig(cfg tui.Config) error {
	if cfg.Words <= 0 {
		return fmt.Errorf("--words must be > 0")
	}
	if cfg.MaxAttempts < 0 {
		return fmt.Errorf("--max-attempts must be >= 0")
	}
	return nil
}

func validateServerConfig(cfg serverSettings) error {
	if strings.TrimSpace(cfg.addr) == "" {
		return fmt.Errorf("--addr must not be empty")
	}
	if cfg.sessionTTL < 0 {
		return fmt.Errorf("--session-ttl must be >= 0")
	}
	if cfg.idleTimeout < 0 {
		return fmt.Errorf("--idle-timeout must be >= 0")
	}
	if hclog.LevelFromString(cfg.logLevel) == hclog.NoLevel {
		return fmt.Errorf("--log-level %q is not a known level", cfg.logLevel)
	}
	if cfg.minWords <= 0 {
		return fmt.Errorf("--min-words must be > 0")
	}
	if cfg.maxWords < cfg.minWords {
		return fmt.Errorf("--max-words must be >= --min-words")
	}
	if cfg.defaultWords < cfg.minWords || cfg.defaultWords > cfg.maxWords {
		return fmt.Errorf("--default-words must be between --min-words and --max-words")
	}
	if cfg.text.CapsPct < 0 || cfg.text.CapsPct > 1 {
		return fmt.Errorf("--caps must be between 0 and 1")
	}
	if cfg.text.PunctPct < 0 || cfg.text.PunctPct > 1 {
		return fmt.Errorf("--punct must be between 0 and 1")
	}
	if cfg.text.PunctPct > 0 && cfg.text.PunctSet == "" {
		return fmt.Errorf("--punct-set must not be empty")
	}
	if cfg.otelEnabled && cfg.otelEndpoint == "" {
		return fmt.Errorf("--otel-endpoint is required when tracing is enabled")
	}
	return nil
}

// resolveWordListPath prefers an explicit path, then a user list for the
// language under the config directory. Empty means the built-in list.
func resolveWordListPath(lang, configured string) string {
	if configured != "" {
		return configured
	}
	path := config.DefaultWordListPath(lang)
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			logErrf("ignoring word list %s: %v\n", path, err)
		}
		return ""
	}
	return path
}

func serverUnreachableError(url string, err error) error {
	lines := []string{
		fmt.Sprintf("failed to reach server: %v", err),
		fmt.Sprintf("expected a typestream server at: %s", url),
		"Start one with: typestream serve",
		"Or point elsewhere: typestream --server <url>",
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		return
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		return
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
