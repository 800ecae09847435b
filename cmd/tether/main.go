// Command tether connects to a remote MCP tool server, lists the tools it
// advertises, or invokes one.
//
// Usage:
//
//	TETHER_TOKEN=... tether -url https://example.com/mcp [flags]
//
// Flags:
//
//	-url string      Server endpoint URL (required)
//	-token string    Bearer token (overrides TETHER_TOKEN)
//	-tools string    Glob filter for tool names when listing (default "*")
//	-call string     Tool to invoke; prints the result and exits
//	-args string     JSON arguments for -call (default "{}")
//	-timeout dur     Overall deadline (default 60s)
//	-v               Verbose logging to stderr
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"github.com/fwojciec/tether"
	"github.com/fwojciec/tether/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		serverURL = flag.String("url", "", "Server endpoint URL")
		token     = flag.String("token", "", "Bearer token (overrides TETHER_TOKEN)")
		toolGlob  = flag.String("tools", "*", "Glob filter for tool names when listing")
		callName  = flag.String("call", "", "Tool to invoke")
		callArgs  = flag.String("args", "{}", "JSON arguments for -call")
		timeout   = flag.Duration("timeout", 60*time.Second, "Overall deadline")
		verbose   = flag.Bool("v", false, "Verbose logging to stderr")
	)
	flag.Parse()

	if *serverURL == "" {
		return errors.New("-url is required")
	}
	bearer := *token
	if bearer == "" {
		bearer = os.Getenv("TETHER_TOKEN")
	}
	if bearer == "" {
		return errors.New("no token: pass -token or set TETHER_TOKEN")
	}

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := mcp.New(*serverURL, bearer,
		mcp.WithLogger(log),
		mcp.WithOnAuthInvalid(func() {
			log.Warn().Msg("bearer token rejected; obtain a fresh one")
		}),
		mcp.WithNotificationHandler(func(msg tether.Message) {
			log.Debug().Str("method", msg.Method).Msg("notification")
		}),
	)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return describeErr(err)
	}
	log.Info().Str("transport", client.Transport()).Msg("connected")

	p := newPrinter(os.Stdout, tether.DefaultTheme())

	if *callName != "" {
		var args json.RawMessage
		if err := json.Unmarshal([]byte(*callArgs), &args); err != nil {
			return fmt.Errorf("-args is not valid JSON: %w", err)
		}
		result, err := client.CallTool(ctx, *callName, args)
		if err != nil {
			return describeErr(err)
		}
		return p.printResult(*callName, result)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		return describeErr(err)
	}
	return p.printTools(tools, *toolGlob)
}

// describeErr renders a classified error with both its human message and
// technical details; anything else passes through unchanged.
func describeErr(err error) error {
	var cerr *tether.ClassifiedError
	if errors.As(err, &cerr) {
		if cerr.Detail != "" {
			return fmt.Errorf("%s\n  %s", cerr.Message, cerr.Detail)
		}
		return errors.New(cerr.Message)
	}
	return err
}
