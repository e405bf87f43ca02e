package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/chatrelay/internal/config"
)

// runFunc starts the relay with a validated configuration.
type runFunc func(ctx context.Context, cfg config.Config) error

func newRootCmd(runner runFunc) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "chatrelay [<port> <debug_option>]",
		Short: "UDP chat relay for up to ten registered clients",
		Long: "chatrelay listens on one UDP port, assigns session ids 1-10 to clients that send JOIN, " +
			"and relays every frame to the registered sessions. debug_option 1 traces every frame.",
		Args: positionalArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(configPath)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				port, debug, err := parsePositional(args)
				if err != nil {
					return err
				}
				v.Set("relay.port", port)
				v.Set("relay.debug", debug)
			}
			cfg, err := config.LoadFromViper(v)
			if err != nil {
				return err
			}
			// Past this point failures are runtime errors, not usage errors.
			cmd.SilenceUsage = true
			return runner(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML configuration file")

	return rootCmd
}

func positionalArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("expected <port> <debug_option>, got %d argument(s)", len(args))
	}
	return nil
}

// parsePositional reads the original "<port> <debug_option>" form; only a
// debug_option of 1 enables tracing.
func parsePositional(args []string) (int, bool, error) {
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return 0, false, fmt.Errorf("port must be an integer 1-65535, got %q", args[0])
	}
	debug, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, false, fmt.Errorf("debug_option must be an integer, got %q", args[1])
	}
	return port, debug == 1, nil
}
