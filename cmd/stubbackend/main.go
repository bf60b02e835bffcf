package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/stubbackend"

	flags "github.com/jessevdk/go-flags"
)

// Flags override the environment, HOST and PORT always come from it.
type flagOptions struct {
	Delay     time.Duration `long:"delay" description:"time to wait before serving /health"`
	ExitAfter time.Duration `long:"exit-after" description:"exit with --exit-code after this long instead of serving"`
	ExitCode  *int          `long:"exit-code" description:"exit code used with --exit-after"`
	Status    int           `long:"status" description:"HTTP status returned by /health"`
	Protocol  string        `long:"protocol" choice:"http" choice:"grpc" description:"health protocol to serve"`
	LogLevel  string        `long:"log-level" default:"info" description:"log level: debug, info, warn, error"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logging.NewZapLogger(logging.Config{Level: opts.LogLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger := logging.ForBackend("module: stub-backend , ", zapLogger)

	stubOptions, err := stubbackend.OptionsFromEnv(os.LookupEnv)
	if err != nil {
		logger.Errorf("Invalid environment: %v", err)
		os.Exit(1)
	}
	if opts.Delay > 0 {
		stubOptions.Delay = opts.Delay
	}
	if opts.ExitAfter > 0 {
		stubOptions.ExitAfter = opts.ExitAfter
	}
	if opts.ExitCode != nil {
		stubOptions.ExitCode = *opts.ExitCode
	}
	if opts.Status != 0 {
		stubOptions.Status = opts.Status
	}
	if opts.Protocol != "" {
		stubOptions.Protocol = opts.Protocol
	}

	logger.Infof("opts: %+v", stubOptions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code, err := stubbackend.Run(ctx, stubOptions, logger)
	stop()
	if err != nil {
		logger.Errorf("Stub backend failed: %v", err)
	}
	zapLogger.Close()
	os.Exit(code)
}
