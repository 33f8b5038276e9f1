package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/omochice/socketchat/internal/config"
	"github.com/omochice/socketchat/internal/connection"
	"github.com/omochice/socketchat/internal/session"
	"github.com/omochice/socketchat/internal/transport/ws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newClientCmd() *cobra.Command {
	var (
		endpoint    string
		dialTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a chat endpoint and exchange messages from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			if cmd.Flags().Changed("dial-timeout") {
				cfg.DialTimeout = dialTimeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := connection.NewManager(ws.NewDialer(),
				connection.WithLogger(log),
				connection.WithDialTimeout(cfg.DialTimeout),
			)
			sess := session.New(manager, cfg.Endpoint, session.WithLogger(log))

			fmt.Fprintf(cmd.OutOrStdout(), "Chatting on %s (type 'quit' to exit)\n", cfg.Endpoint)
			return runClient(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", config.DefaultEndpoint, "chat endpoint (ws:// or wss:// URL)")
	cmd.Flags().DurationVar(&dialTimeout, "dial-timeout", 0, "give up connecting after this long (0 waits forever)")
	return cmd
}

// runClient submits every non-empty input line and prints each new message
// of the session log. It closes sess before returning.
func runClient(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printed := 0
		for snapshot := range sess.Updates() {
			if len(snapshot) <= printed {
				continue
			}
			for _, content := range snapshot[printed:] {
				fmt.Fprintf(out, "> %s\n", content)
			}
			printed = len(snapshot)
		}
	}()
	defer func() {
		sess.Close()
		wg.Wait()
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Interrupted, leaving chat")
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			return nil
		case line := <-lines:
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				return nil
			}
			if state := sess.State(); state != connection.StateConnected {
				log.Warn("Not connected, message kept locally only", zap.Stringer("state", state))
			}
			sess.Submit(text)
		}
	}
}
