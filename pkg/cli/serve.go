package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve starts the StoryWeaver HTTP API and the static frontend.

Example:
  storyweaver serve --port 8080 --store sqlite --store-path data/storyweaver.db
  STORYWEAVER_LLM_PROVIDER=gemini STORYWEAVER_LLM_API_KEY=... storyweaver serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "listen port (default 8080)")
	serveCmd.Flags().Bool("seed", true, "install the sample story on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Seed {
		if err := a.srv.Seed(ctx); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() {
		if err := a.srv.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTTL)
	defer cancel()
	if err := a.srv.Shutdown(shutdown); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
	return nil
}
