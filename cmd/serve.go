package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chat-llm/internal/chat"
	"github.com/samsaffron/chat-llm/internal/config"
	servechat "github.com/samsaffron/chat-llm/internal/serve/chat"
)

var (
	serveAddr  string
	serveToken string
	serveDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose chat sessions over HTTP and WebSocket",
	Long: `Run an HTTP server that exposes the conversation store to remote clients.

Endpoints:
  GET /chat/sessions        - JSON list of conversations
  GET /chat/sessions/new    - WebSocket, starts a new conversation
  GET /chat/sessions/{id}   - WebSocket, resumes a conversation

Set a bearer token to require Authorization headers; with no token the
server accepts any client, so bind it to localhost.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8484)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required on every request")
	serveCmd.Flags().BoolVarP(&serveDebug, "debug", "d", false, "Log requests to stderr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	serveCfg := cfg.Serve
	if serveAddr != "" {
		serveCfg.Addr = serveAddr
	}
	if serveToken != "" {
		serveCfg.Token = serveToken
	}

	store := chat.NewStore(cfg.DefaultModel, cfg.SystemPrompt)
	coord := chat.NewCoordinator(store, cfg, nil)
	server := servechat.NewServer(store, coord, serveCfg)
	server.SetDebug(serveDebug)

	httpServer := &http.Server{
		Addr:    serveCfg.Addr,
		Handler: server.HTTPHandler(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	fmt.Printf("Listening on %s\n", serveCfg.Addr)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
	}
	return nil
}
