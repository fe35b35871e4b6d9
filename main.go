package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-data/visionproof/internal/analysis"
	"github.com/kestrel-data/visionproof/internal/api"
	"github.com/kestrel-data/visionproof/internal/config"
	"github.com/kestrel-data/visionproof/internal/db"
	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/fsutil"
	"github.com/kestrel-data/visionproof/internal/httputil"
	"github.com/kestrel-data/visionproof/internal/report"
	"github.com/kestrel-data/visionproof/internal/rules"
	"github.com/kestrel-data/visionproof/internal/runner"
	"github.com/kestrel-data/visionproof/internal/sheets"
	"github.com/kestrel-data/visionproof/internal/validate"
	"github.com/kestrel-data/visionproof/internal/version"
	"github.com/kestrel-data/visionproof/internal/videostore"
	"github.com/kestrel-data/visionproof/internal/workflow"
)

const defaultMigrationsDir = "migrations"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		handleRun(args)
	case "run-one":
		handleRunOne(args)
	case "serve":
		handleServe(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Printf("visionproof version %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`visionproof - validation harness for AI video analysis

Usage: visionproof <command> [options]

Commands:
  run        Validate every enabled rule and write reports
  run-one    Validate a single rule by id, enabled or not
  serve      Serve stored runs over HTTP (JSON, CSV, charts)
  migrate    Manage the run-store database schema
  version    Show visionproof version
  help       Show this help message

Common Flags:
  --config <file>      Harness configuration file (default: config/harness.defaults.json)
  --rules <file>       Rule catalogue (overrides config)
  --db-path <path>     Run-store database file (overrides config)

Examples:
  visionproof run --out reports
  visionproof run-one no-helmet
  visionproof serve --listen :8080
  visionproof migrate up`)
}

// loadConfig loads the harness configuration. A missing file at the
// default path is not an error; every setting has a built-in default.
func loadConfig(path string) (*config.HarnessConfig, error) {
	if path == config.DefaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Printf("no config file at %s, using defaults", path)
			return config.EmptyHarnessConfig(), nil
		}
	}
	return config.LoadHarnessConfig(path)
}

// harness bundles everything a validation run needs.
type harness struct {
	cfg          *config.HarnessConfig
	catalogue    *rules.Catalogue
	orchestrator *workflow.Orchestrator
}

func buildHarness(cfgPath, rulesPath string) (*harness, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if rulesPath == "" {
		rulesPath = cfg.GetRulesPath()
	}
	catalogue, err := rules.Load(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	hc := httputil.NewStandardClient(&http.Client{Timeout: 60 * time.Second})
	effectiveFPS := cfg.GetFrameRate() / cfg.GetCompression()

	sheetsClient := sheets.NewClient(cfg.GetSheetsBaseURL(), hc, effectiveFPS)
	videoClient := videostore.NewClient(cfg.GetVideoBaseURL(), hc)
	aiClient := analysis.NewClient(cfg.GetAnalysisBaseURL(), hc)

	runnerOpts := runner.Options{
		Validate:    validate.Config{IoUThreshold: cfg.GetIoUThreshold()},
		CaseWorkers: cfg.GetCaseWorkers(),
		Retry: faults.Backoff{
			Base:        cfg.GetRetryBase(),
			Multiplier:  2,
			Max:         5 * time.Second,
			MaxAttempts: cfg.GetRetryAttempts(),
		},
		Poll: runner.PollPolicy{
			Base:       cfg.GetPollBaseDelay(),
			Multiplier: cfg.GetPollMultiplier(),
			Max:        cfg.GetPollMaxDelay(),
			Timeout:    cfg.GetRuleTimeout(),
		},
	}

	newRunner := func(rule rules.Rule) workflow.RuleRunner {
		return runner.New(rule, sheetsClient, videoClient, aiClient, runnerOpts)
	}

	orch := workflow.New(catalogue, newRunner, workflow.Options{
		Workers:     cfg.GetRuleWorkers(),
		RuleTimeout: cfg.GetRuleTimeout(),
	})

	return &harness{cfg: cfg, catalogue: catalogue, orchestrator: orch}, nil
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath, "Harness configuration file")
	rulesPath := fs.String("rules", "", "Rule catalogue (overrides config)")
	dbPath := fs.String("db-path", "", "Run-store database file (overrides config)")
	outDir := fs.String("out", "reports", "Directory for report artifacts")
	noStore := fs.Bool("no-store", false, "Skip persisting the run to the database")
	fs.Parse(args)

	h, err := buildHarness(*cfgPath, *rulesPath)
	if err != nil {
		log.Fatalf("Failed to build harness: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := h.orchestrator.RunAll(ctx)

	if err := report.WriteText(os.Stdout, summary); err != nil {
		log.Printf("failed to print report: %v", err)
	}

	paths, err := report.WriteArtifacts(fsutil.OSFileSystem{}, *outDir, summary)
	if err != nil {
		log.Fatalf("Failed to write report artifacts: %v", err)
	}
	for _, p := range paths {
		log.Printf("wrote %s", p)
	}

	if !*noStore {
		storeSummary(h.cfg, *dbPath, summary)
	}

	// A run with failures still produced valid reports; signal the
	// failure to CI via the exit code.
	if summary.TotalFailed > 0 {
		os.Exit(1)
	}
}

func handleRunOne(args []string) {
	fs := flag.NewFlagSet("run-one", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath, "Harness configuration file")
	rulesPath := fs.String("rules", "", "Rule catalogue (overrides config)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatal("Usage: visionproof run-one [options] <rule-id>")
	}
	ruleID := fs.Arg(0)

	h, err := buildHarness(*cfgPath, *rulesPath)
	if err != nil {
		log.Fatalf("Failed to build harness: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rr, err := h.orchestrator.RunOne(ctx, ruleID)
	if err != nil {
		log.Fatalf("Rule %s failed: %v", ruleID, err)
	}

	summary := report.BuildSummary([]report.Rule{rr})
	if err := report.WriteText(os.Stdout, summary); err != nil {
		log.Printf("failed to print report: %v", err)
	}
	if rr.Failed > 0 || rr.Err != "" {
		os.Exit(1)
	}
}

func storeSummary(cfg *config.HarnessConfig, dbPath string, summary report.Summary) {
	if dbPath == "" {
		dbPath = cfg.GetDBPath()
	}
	database, err := db.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if needed, err := database.CheckAndPromptMigrations(defaultMigrationsDir); needed {
		log.Fatalf("Database not ready: %v", err)
	}

	if err := database.SaveSummary(summary); err != nil {
		log.Fatalf("Failed to store run %s: %v", summary.RunID, err)
	}
	log.Printf("stored run %s (accuracy %.2f)", summary.RunID, summary.OverallAccuracy)
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath, "Harness configuration file")
	dbPath := fs.String("db-path", "", "Run-store database file (overrides config)")
	outDir := fs.String("out", "reports", "Directory the run command wrote artifacts into")
	listen := fs.String("listen", ":8080", "Listen address")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.GetDBPath()
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if needed, err := database.CheckAndPromptMigrations(defaultMigrationsDir); needed {
		log.Fatalf("Database not ready: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()

	// mount the admin debugging routes first, then the API
	database.AttachAdminRoutes(mux)
	apiMux := api.NewServer(database, fsutil.OSFileSystem{}, *outDir).ServeMux()
	mux.Handle("/", api.LoggingMiddleware(apiMux))

	server := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath, "Harness configuration file")
	dbPath := fs.String("db-path", "", "Run-store database file (overrides config)")
	migrationsDir := fs.String("migrations", defaultMigrationsDir, "Migrations directory")
	fs.Parse(args)

	if *dbPath == "" {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		*dbPath = cfg.GetDBPath()
	}

	db.RunMigrateCommand(fs.Args(), *dbPath, *migrationsDir)
}
