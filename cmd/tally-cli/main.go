package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/dispatch"
	"tally/internal/intent"
	"tally/internal/log"
	"tally/internal/oracle/gemini"
)

// handler is the slice of *dispatch.Dispatcher the REPL needs.
type handler interface {
	Handle(ctx context.Context, req dispatch.Request) (dispatch.Response, error)
}

func main() {
	cli.LoadEnvFile()

	fs := flag.NewFlagSet("tally-cli", flag.ExitOnError)
	owner := fs.String("owner", "cli", "owner id every message is recorded under")
	lang := fs.String("lang", "", "reply language (en or zh); defaults to DEFAULT_LANGUAGE")
	logLevel := fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	fs.Parse(os.Args[1:])

	logger := cli.SetupLogger(*logLevel)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger, nil).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer result.Cleanup()

	d := dispatch.New(newResolver(cfg), result.Backend, dispatch.Config{
		Entities:        cfg.EntitySet(),
		DefaultLanguage: cfg.DefaultLanguage,
		Logger:          log.Wrap(logger, log.ComponentCLI),
	})

	// Closing stdin unblocks the scanner on SIGINT.
	ctx := cli.GracefulShutdown(logger, 5*time.Second, func(context.Context) {
		_ = os.Stdin.Close()
	})
	if err := run(ctx, os.Stdin, os.Stdout, d, *owner, *lang); err != nil {
		logger.Error("REPL stopped", "error", err)
		os.Exit(1)
	}
}

func newResolver(cfg *config.Config) *intent.Resolver {
	opts := []intent.Option{
		intent.WithTimeout(cfg.OracleTimeout),
		intent.WithLogger(log.Wrap(nil, log.ComponentIntent)),
	}
	if cfg.OracleBackend != "gemini" {
		return intent.NewResolver(cfg.EntitySet(), nil, opts...)
	}
	o, err := gemini.New(context.Background(), gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.OracleModel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Gemini unavailable, continuing with fixed phrasings only: %v\n", err)
		return intent.NewResolver(cfg.EntitySet(), nil, opts...)
	}
	return intent.NewResolver(cfg.EntitySet(), o, opts...)
}

// run reads one message per line until EOF, "exit" or ctx cancellation.
// Storage failures are printed and the loop continues.
func run(ctx context.Context, in io.Reader, out io.Writer, h handler, owner, lang string) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := h.Handle(ctx, dispatch.Request{Text: line, OwnerID: owner, Language: lang})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n> ", err)
			continue
		}
		fmt.Fprintf(out, "%s\n> ", resp.Text)
	}
	return scanner.Err()
}
