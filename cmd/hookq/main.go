package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/hookq/internal/config"
	"github.com/mattjoyce/hookq/internal/doctor"
	"github.com/mattjoyce/hookq/internal/log"
	"github.com/mattjoyce/hookq/internal/queue"
	"github.com/mattjoyce/hookq/internal/storage"
	"github.com/mattjoyce/hookq/internal/telemetry"
	"github.com/mattjoyce/hookq/internal/tui"
	"github.com/mattjoyce/hookq/internal/webhook"
	"gopkg.in/yaml.v3"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "queue":
		return runQueueNoun(rest)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(rest)
	case "doctor":
		return runConfigCheck(rest)
	case "version":
		fmt.Printf("hookq version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`hookq - signed webhook to queue gateway

Usage:
  hookq <noun> <action> [flags]

Core Resources (Nouns):
  system    Gateway lifecycle
  config    Configuration inspection and validation
  queue     Queue store inspection

System Commands:
  system start        Serve the webhook endpoint in the foreground

Config Commands:
  config check        Validate configuration (optionally ping the queue store)
  config show [path]  Show resolved configuration with secrets redacted
  config get <path>   Read a single resolved value

Queue Commands:
  queue depth         Show the number of queued payloads
  queue peek          Print payloads from the head of the queue
  queue watch         Live terminal view of queue depth and head

General:
  version             Show version information
  help                Show this help message

Configuration comes from an optional YAML file (--config, $HOOKQ_CONFIG,
~/.config/hookq/config.yaml, /etc/hookq/config.yaml, ./config.yaml) and the
environment: PORT, TOKEN, APP_SECRET, REDIS_URL, QUEUE_KEY, LOG_LEVEL.
A .env file in the working directory is loaded first when present.

Use 'hookq <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			printConfigGetHelp()
			return 0
		}
		return runConfigGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runQueueNoun(args []string) int {
	if len(args) < 1 {
		printQueueNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printQueueNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "depth":
		if hasHelpFlag(actionArgs) {
			printQueueDepthHelp()
			return 0
		}
		return runQueueDepth(actionArgs)
	case "peek":
		if hasHelpFlag(actionArgs) {
			printQueuePeekHelp()
			return 0
		}
		return runQueuePeek(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printQueueWatchHelp()
			return 0
		}
		return runQueueWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown queue action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookq system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookq config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show, get")
}

func printQueueNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookq queue <action> [flags]")
	fmt.Fprintln(w, "Actions: depth, peek, watch")
}

func printSystemStartHelp() {
	fmt.Println("Usage: hookq system start [--config PATH] [--env-file PATH]")
	fmt.Println("Serve the webhook endpoint in the foreground until SIGINT or SIGTERM.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hookq config check [--config PATH] [--env-file PATH] [--ping] [--strict] [--json]")
	fmt.Println("Validate configuration. --ping also connects to the queue store.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: hookq config show [path] [--config PATH] [--env-file PATH] [--json]")
	fmt.Println("Show the resolved configuration (secrets redacted) or one subtree.")
}

func printConfigGetHelp() {
	fmt.Println("Usage: hookq config get <path> [--config PATH] [--env-file PATH] [--json]")
	fmt.Println("Read a single value from the resolved configuration.")
}

func printQueueDepthHelp() {
	fmt.Println("Usage: hookq queue depth [--config PATH] [--env-file PATH] [--json]")
	fmt.Println("Show the number of payloads waiting in the queue.")
}

func printQueuePeekHelp() {
	fmt.Println("Usage: hookq queue peek [-n COUNT] [--config PATH] [--env-file PATH]")
	fmt.Println("Print payloads from the head of the queue without removing them.")
}

func printQueueWatchHelp() {
	fmt.Println("Usage: hookq queue watch [--interval 1s] [-n COUNT] [--config PATH] [--env-file PATH]")
	fmt.Println("Live terminal view of queue depth, net rate and the entries at the head.")
}

// --- ACTION IMPLEMENTATIONS ---

// toolFlags are the flags every action accepts for locating configuration.
type toolFlags struct {
	configPath string
	envFile    string
}

func (f *toolFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&f.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
}

// resolveConfigPath loads the dotenv file and returns the config file to
// read, which may be empty when hookq runs from the environment alone.
func (f *toolFlags) resolveConfigPath() (string, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return "", err
	}
	if f.configPath != "" {
		return f.configPath, nil
	}
	if discovered, ok := config.DiscoverConfigFile(); ok {
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
		return discovered, nil
	}
	return "", nil
}

func loadConfigForTool(f *toolFlags) (*config.Config, error) {
	path, err := f.resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// openEnqueuer connects to the configured queue store. The caller closes
// the returned store.
func openEnqueuer(ctx context.Context, cfg *config.Config) (*queue.Enqueuer, queue.Store, error) {
	store, backend, err := storage.Open(ctx, cfg.Queue.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.CheckKey(backend, cfg.Queue.Key); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	enq, err := queue.New(store, queue.Config{Key: cfg.Queue.Key, Timeout: cfg.Queue.EnqueueTimeout}, log.Discard())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return enq, store, nil
}

func runStart(args []string) int {
	var tf toolFlags
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	tf.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	configPath, err := tf.resolveConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		return 1
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("hookq starting", "version", version, "config", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Service.Name, cfg.Service.OTelEndpoint, version)
	if err != nil {
		logger.Error("failed to set up tracing", "endpoint", cfg.Service.OTelEndpoint, "error", err)
		return 1
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	store, backend, err := storage.Open(ctx, cfg.Queue.URL)
	if err != nil {
		logger.Error("failed to connect queue store", "url", config.RedactURL(cfg.Queue.URL), "error", err)
		return 1
	}
	defer store.Close()
	logger.Info("queue store connected", "backend", backend, "url", config.RedactURL(cfg.Queue.URL))

	if err := storage.CheckKey(backend, cfg.Queue.Key); err != nil {
		logger.Error("queue key not usable with this store", "backend", backend, "error", err)
		return 1
	}

	enq, err := queue.New(store, queue.Config{
		Key:     cfg.Queue.Key,
		Timeout: cfg.Queue.EnqueueTimeout,
	}, log.WithComponent("queue"))
	if err != nil {
		logger.Error("failed to create enqueuer", "error", err)
		return 1
	}

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook", "error", err)
		return 1
	}
	webhookServer, err := webhook.New(webhookConfig, enq, log.WithComponent("webhook"))
	if err != nil {
		logger.Error("failed to create webhook server", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- webhookServer.Start(ctx)
	}()

	logger.Info("hookq running (press Ctrl+C to stop)",
		"listen", webhookConfig.Listen,
		"path", webhookConfig.Path,
		"queue", cfg.Queue.Key,
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("webhook server shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("hookq stopped")
	return 0
}

func runConfigCheck(args []string) int {
	var tf toolFlags
	var ping, strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ExitOnError)
	tf.register(fs)
	fs.BoolVar(&ping, "ping", false, "Connect to the queue store")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	configPath, err := tf.resolveConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Environment load error: %v\n", err)
		return 1
	}
	cfg, err := config.LoadRaw(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store doctor.Pinger
	if ping {
		s, _, err := storage.Open(ctx, cfg.Queue.URL)
		if err != nil {
			store = unreachable{err: err}
		} else {
			defer s.Close()
			store = s
		}
	}

	result := doctor.New(cfg, store).Validate(ctx)

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

// unreachable reports a store that could not be opened as a failed ping.
type unreachable struct{ err error }

func (u unreachable) Ping(context.Context) error { return u.err }

func runConfigShow(args []string) int {
	var tf toolFlags
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	tf.register(fs)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(&tf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	path := ""
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	result, err := cfg.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(result)
		fmt.Print(string(data))
	}
	return 0
}

func runConfigGet(args []string) int {
	var tf toolFlags
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	tf.register(fs)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: hookq config get <path> [--json]\n")
		return 1
	}

	cfg, err := loadConfigForTool(&tf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}

func runQueueDepth(args []string) int {
	var tf toolFlags
	fs := flag.NewFlagSet("depth", flag.ExitOnError)
	tf.register(fs)
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(&tf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enq, store, err := openEnqueuer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Queue store error: %v\n", err)
		return 1
	}
	defer store.Close()

	n, err := enq.Depth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Queue depth error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.Marshal(map[string]any{"queue": enq.Key(), "queue_size": n})
		fmt.Println(string(data))
	} else {
		fmt.Printf("%s: %d\n", enq.Key(), n)
	}
	return 0
}

func runQueuePeek(args []string) int {
	var tf toolFlags
	fs := flag.NewFlagSet("peek", flag.ExitOnError)
	tf.register(fs)
	count := fs.Int64("n", 10, "Number of payloads to print")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *count < 1 {
		fmt.Fprintf(os.Stderr, "-n must be at least 1\n")
		return 1
	}

	cfg, err := loadConfigForTool(&tf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enq, store, err := openEnqueuer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Queue store error: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := enq.Peek(ctx, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Queue peek error: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Println(string(e))
	}
	return 0
}

func runQueueWatch(args []string) int {
	var tf toolFlags
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	tf.register(fs)
	interval := fs.Duration("interval", time.Second, "Poll interval")
	count := fs.Int64("n", 10, "Number of head entries to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(&tf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	enq, store, err := openEnqueuer(ctx, cfg)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Queue store error: %v\n", err)
		return 1
	}
	defer store.Close()

	p := tea.NewProgram(tui.NewMonitor(enq, *interval, *count))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor error: %v\n", err)
		return 1
	}
	return 0
}
