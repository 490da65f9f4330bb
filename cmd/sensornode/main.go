// Gray Logic Sensor Node
//
// Entry point for the sensor node daemon. It brings the node's connectivity
// up in order (wireless, IP address, trusted clock, MQTT broker) and then
// publishes a temperature reading on every wall-clock boundary.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/logging"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/sensornode.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses flags, loads configuration and runs the node until ctx ends
// or bring-up fails terminally.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("sensornode", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	configPath := flags.StringP("config", "c", "", "path to the YAML config file (env SENSORNODE_CONFIG)")
	showVersion := flags.Bool("version", false, "print version and exit")
	validateOnly := flags.Bool("validate", false, "load and validate the config, then exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	if *showVersion {
		fmt.Fprintf(stdout, "sensornode %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *validateOnly {
		fmt.Fprintf(stdout, "configuration OK: %s\n", path)
		return nil
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting sensor node",
		"node_id", cfg.Node.ID,
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", path,
	)

	n, err := newNode(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer n.close()

	if err := n.run(ctx); err != nil {
		return err
	}
	log.Info("sensor node stopped")
	return nil
}

// resolveConfigPath picks the flag value, then SENSORNODE_CONFIG, then the
// default path.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("SENSORNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
