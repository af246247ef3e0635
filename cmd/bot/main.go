package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/bot"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/config"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/datastore"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/eval"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/logger"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/pipeline"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/sandbox"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/transport/whatsapp"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultHTTPAddr    = "0.0.0.0:3000"
	defaultMetricsAddr = "0.0.0.0:8080"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	httpAddrFlag := flag.String("http-addr", defaultHTTPAddr, "Address to listen on for webhook requests")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	publicURLFlag := flag.String("public-url", "", "Externally visible base URL used for webhook signature validation")
	enablePprofFlag := flag.Bool("enable-pprof", false, "enable pprof server")
	flag.Parse()

	log := logger.New(*verboseFlag)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if *metricsAddrFlag != "" {
		bot.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := datastore.Open(ctx, datastore.Config{
		Logger:    log,
		UsersCSV:  cfg.UsersCSV,
		OrdersCSV: cfg.OrdersCSV,
	})
	if err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer store.Close()

	executor, err := sandbox.New(sandbox.Config{Logger: log, Store: store})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	prompts, err := pipeline.LoadPrompts()
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	model := llm.NewAnthropicClient(log, cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens)

	pipe, err := pipeline.New(pipeline.Config{
		Logger:   log,
		LLM:      model,
		Executor: executor,
		Schema:   store,
		Prompts:  prompts,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	var evaluator bot.Evaluator
	if cfg.EvalEnabled {
		ev, err := eval.New(eval.Config{Logger: log, LLM: model})
		if err != nil {
			return fmt.Errorf("failed to create evaluator: %w", err)
		}
		evaluator = ev
		log.Info("answer evaluation enabled")
	}

	handler, err := bot.New(bot.Config{
		Logger:    log,
		Pipeline:  pipe,
		Evaluator: evaluator,
	})
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	server, err := whatsapp.NewServer(whatsapp.Config{
		Logger:    log,
		Handler:   timeoutHandler{handler: handler, cfg: cfg},
		Addr:      *httpAddrFlag,
		AuthToken: cfg.TwilioAuthToken,
		PublicURL: *publicURLFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	err = server.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("bot shutting down", "reason", err)
		return nil
	}
	return err
}

// timeoutHandler bounds each message with the configured request timeout so
// a stuck model call cannot hold a webhook request open forever.
type timeoutHandler struct {
	handler *bot.Handler
	cfg     *config.Config
}

func (h timeoutHandler) Handle(ctx context.Context, user, text string) string {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()
	return h.handler.Handle(ctx, user, text)
}
