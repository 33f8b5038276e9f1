package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/socketchat/internal/config"
	"github.com/omochice/socketchat/internal/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRelayCmd() *cobra.Command {
	var (
		addr   string
		noEcho bool
		rate   float64
		burst  int
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a relay that rebroadcasts chat messages to every client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.RelayAddr = addr
			}
			if cmd.Flags().Changed("no-echo") {
				cfg.RelayEcho = !noEcho
			}
			if cmd.Flags().Changed("rate") {
				cfg.RelayRate = rate
			}
			if cmd.Flags().Changed("burst") {
				cfg.RelayBurst = burst
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			srv := relay.New(cfg.RelayAddr,
				relay.WithEchoToSender(cfg.RelayEcho),
				relay.WithRateLimit(cfg.RelayRate, cfg.RelayBurst),
				relay.WithLogger(log),
			)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				log.Info("Starting relay",
					zap.String("addr", cfg.RelayAddr),
					zap.Bool("echo", cfg.RelayEcho),
					zap.Float64("rate", cfg.RelayRate),
					zap.Int("burst", cfg.RelayBurst),
				)
				errChan <- srv.Start()
			}()

			select {
			case err := <-errChan:
				if err != nil {
					return fmt.Errorf("relay error: %w", err)
				}
			case sig := <-sigChan:
				log.Info("Received signal, shutting down", zap.Stringer("signal", sig))
				srv.Stop()
			}

			log.Info("Relay stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultRelayAddr, "address to listen on")
	cmd.Flags().BoolVar(&noEcho, "no-echo", false, "do not send messages back to their sender")
	cmd.Flags().Float64Var(&rate, "rate", 0, "per-client messages per second (0 disables limiting)")
	cmd.Flags().IntVar(&burst, "burst", config.DefaultRelayBurst, "per-client burst size")
	return cmd
}
