// Command ask runs a single question through the analytics pipeline and
// prints the reply. Useful for prompt work and smoke checks without Twilio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/bot"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/config"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/datastore"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/eval"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/llm"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/logger"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/pipeline"
	"github.com/ZakharovNerd/ai-analyst-prototype/internal/sandbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	log := logger.New(*verboseFlag)

	question := "Сколько всего пользователей?"
	if len(flag.Args()) > 0 {
		question = flag.Arg(0)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
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
	}

	handler, err := bot.New(bot.Config{
		Logger:    log,
		Pipeline:  pipe,
		Evaluator: evaluator,
	})
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	ctx, timeoutCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer timeoutCancel()

	fmt.Println(handler.Handle(ctx, "cli", question))
	return nil
}
