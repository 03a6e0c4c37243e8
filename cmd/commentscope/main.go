package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/umputun/commentscope/pkg/analyzer"
	"github.com/umputun/commentscope/pkg/auth"
	"github.com/umputun/commentscope/pkg/config"
	"github.com/umputun/commentscope/pkg/llm"
	"github.com/umputun/commentscope/pkg/quota"
	"github.com/umputun/commentscope/pkg/repository"
	"github.com/umputun/commentscope/pkg/youtube"
	"github.com/umputun/commentscope/server"
)

// Opts with all CLI options
type Opts struct {
	Config  string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"configuration file"`
	EnvFile string `long:"env-file" env:"ENV_FILE" default:".env" description:"dotenv file loaded before the config"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	if opts.NoColor {
		color.NoColor = true
	}
	setupLog(opts.Debug)
	log.Printf("[INFO] starting commentscope version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
	log.Print("[INFO] shutdown complete")
}

// run loads configuration, wires all components and serves until ctx is canceled
func run(ctx context.Context, opts Opts) error {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLog(opts.Debug, cfg.LLM.APIKey, cfg.Firebase.CredentialsBase64)

	credentials, err := cfg.Firebase.Credentials()
	if err != nil {
		return fmt.Errorf("failed to read firebase credentials: %w", err)
	}

	store, err := repository.NewQuotaStore(ctx, repository.Config{
		Type:            cfg.Storage.Type,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		Collection:      cfg.Storage.Collection,
		ProjectID:       cfg.Firebase.ProjectID,
		CredentialsFile: cfg.Firebase.CredentialsFile,
		CredentialsJSON: credentials,
		MongoURI:        cfg.Storage.MongoURI,
		MongoDatabase:   cfg.Storage.MongoDatabase,
		DynamoRegion:    cfg.Storage.DynamoRegion,
		DynamoEndpoint:  cfg.Storage.DynamoEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to open quota store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close quota store: %v", err)
		}
	}()
	log.Printf("[INFO] quota store: %s", cfg.Storage.Type)

	verifier, err := auth.New(ctx, cfg.Auth, cfg.Firebase, credentials)
	if err != nil {
		return fmt.Errorf("failed to setup auth: %w", err)
	}

	generator, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to setup llm client: %w", err)
	}
	log.Printf("[INFO] llm: %s, model %s", cfg.LLM.Provider, cfg.LLM.Model)

	ledger := quota.NewLedger(store, quota.Config{
		FreeLimit: cfg.Quota.FreeLimit,
		Plans:     cfg.Quota.Plans,
		Location:  cfg.Location(),
	})

	an := analyzer.New(analyzer.Params{
		Ledger:        ledger,
		Fetcher:       youtube.NewFetcher(cfg.YouTube),
		Generator:     generator,
		MaxConcurrent: cfg.LLM.MaxConcurrent,
		GenTimeout:    cfg.LLM.Timeout,
	})

	srv := server.New(server.Params{
		Config:   cfg,
		Analyzer: an,
		Quota:    ledger,
		Verifier: verifier,
		Limits: server.Limits{
			DefaultCount:    cfg.YouTube.DefaultCount,
			MaxComments:     cfg.YouTube.MaxComments,
			DefaultLanguage: cfg.LLM.DefaultLanguage,
		},
		Version: revision,
		Debug:   opts.Debug,
	})

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	var secrets []string
	for _, s := range secs {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
