package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	agoda "github.com/hotelscan/agoda-scraper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := agoda.DefaultRunConfig()
	var (
		searchURL   string
		singleURL   string
		mode        string
		timeoutSec  int
		sessionName string
		useAgentQL  bool
	)

	cmd := &cobra.Command{
		Use:           "agoda-scraper",
		Short:         "Scrape hotel listings and reviews from Agoda",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Timeout = time.Duration(timeoutSec) * time.Second

			var target agoda.Target
			switch mode {
			case "single":
				if singleURL == "" {
					return &agoda.ConfigError{Field: "single-url", Message: "required in single mode"}
				}
				target = agoda.SingleHotelTarget(singleURL)
			case "multiple":
				target = agoda.SearchTarget(searchURL)
			default:
				return &agoda.ConfigError{Field: "mode", Message: "must be single or multiple"}
			}

			return run(cmd.Context(), cfg, target, sessionName, useAgentQL)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.MaxHotels, "max-hotels", cfg.MaxHotels, "Max hotels to scrape")
	flags.IntVar(&cfg.ReviewsPerHotel, "reviews", cfg.ReviewsPerHotel, "Reviews per hotel")
	flags.IntVar(&cfg.MaxReviewPages, "max-review-pages", cfg.MaxReviewPages, "Review page budget per hotel")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent hotel traversals")
	flags.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser in headless mode")
	flags.BoolVar(&cfg.AllowUnauthenticated, "allow-unauthenticated", false, "Continue with reduced coverage when login is blocked by a challenge")
	flags.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for result files")
	flags.IntVar(&timeoutSec, "timeout", int(agoda.DefaultTimeout/time.Second), "Per-step timeout in seconds")
	flags.StringVar(&searchURL, "url", agoda.DefaultSearchURL, "Search URL")
	flags.StringVar(&singleURL, "single-url", "", "Hotel URL for single mode")
	flags.StringVar(&mode, "mode", "multiple", "Scrape mode: multiple or single")
	flags.StringVar(&sessionName, "session", "agoda", "Session name (cookie/profile directory)")
	flags.BoolVar(&useAgentQL, "agentql", false, "Extract via the AgentQL query engine instead of CSS schemas")

	return cmd
}

func run(ctx context.Context, cfg agoda.RunConfig, target agoda.Target, sessionName string, useAgentQL bool) error {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	log := agoda.ZerologLogger{Log: zl}

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	creds, err := agoda.CredentialsFromEnv()
	if err != nil {
		return err
	}
	cfg.Credentials = creds
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser, err := agoda.NewBrowser(agoda.BrowserOptions{
		Headless:    cfg.Headless,
		UserDataDir: "./chromeUserData/" + sessionName,
	}, log)
	if err != nil {
		return err
	}
	defer browser.Close()

	authTab, authCancel := browser.NewTab()
	defer authCancel()
	session := agoda.NewSession(authTab, sessionName, log)

	var extractor agoda.Extractor = agoda.NewSchemaExtractor(log)
	if useAgentQL {
		client := agoda.NewAgentQLClient(creds.AgentQLKey, log)
		extractor = agoda.NewAgentQLExtractor(client, log)
	}

	factory := agoda.WorkerFactoryFunc(func(ctx context.Context) (*agoda.Worker, error) {
		tab, cancel := browser.NewTab()
		nav := agoda.NewChromeNavigator(tab, log, cfg.MaxReviewPages)
		nav.Timeout = cfg.Timeout
		return &agoda.Worker{Nav: nav, Ex: extractor, Close: cancel}, nil
	})

	startedAt := time.Now()
	sink, err := agoda.NewJSONFileSink(cfg.OutputDir, startedAt, log)
	if err != nil {
		return err
	}

	controller := agoda.NewController(agoda.DefaultRetryPolicy(), cfg.MinInterval, log)
	pipeline := agoda.NewPipeline(cfg, target, session, factory, controller, sink, log)

	result, runErr := pipeline.Run(ctx)
	if runErr != nil {
		zl.Error().Err(runErr).Str("state", pipeline.State().String()).Msg("run aborted")
		return runErr
	}

	zl.Info().
		Int("hotels", len(result.Hotels)).
		Int("reviews", len(result.Reviews)).
		Int("errors", len(result.Errors)).
		Str("output", sink.Path()).
		Msg("run complete")
	return nil
}
