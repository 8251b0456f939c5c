package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mgpai22/chitra/internal/job"
	"github.com/mgpai22/chitra/internal/server"
	"github.com/mgpai22/chitra/internal/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API and WebSocket updates for a player UI",
	Long: `Start an HTTP server exposing sessions over REST, with progress and
playback state pushed over WebSocket at /ws/{id}.

Examples:
  chitra serve
  chitra serve --addr 127.0.0.1:9000 --images pexels`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("upload-dir", "", "Directory for uploaded media (default: system temp)")
	serveCmd.Flags().Bool("raw-upload", false, "Upload video files without extracting audio")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	uploadDir, _ := cmd.Flags().GetString("upload-dir")
	rawUpload, _ := cmd.Flags().GetBool("raw-upload")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := session.NewServices(ctx, cfg)
	if err != nil {
		return err
	}

	catalog, err := session.LoadCatalog(cfg.PresetsFile)
	if err != nil {
		return err
	}

	policy := job.DefaultPollPolicy()
	policy.Timeout = cfg.PollTimeout

	factory := func(id string) *session.Session {
		resolver := session.NewResolver(catalog)
		resolver.RawUpload = rawUpload
		resolver.Logger = logger
		return session.New(services,
			session.WithID(id),
			session.WithResolver(resolver),
			session.WithPollPolicy(policy),
			session.WithLogger(logger),
		)
	}

	srv := server.New(factory, catalog,
		server.WithLogger(logger),
		server.WithUploadRoot(uploadDir),
	)
	return srv.ListenAndServe(ctx, addr)
}
