package commands

import (
	"context"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/goliatone/go-library"
	"github.com/goliatone/go-library/activitymap"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides server.addr")
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.GetLogger("server")
	srv := rt.cfg.GetServer()

	if rt.cfg.GetPersistence().AutoMigrate {
		if err := rt.migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema ready")
	}

	server := library.NewServer(rt.GetLogger("http"), func(c *fiber.Config) {
		c.ReadTimeout = srv.GetReadTimeout()
		c.WriteTimeout = srv.GetWriteTimeout()
	})

	if srv.RequestLogging {
		server.WrappedRouter().Use(fiberlogger.New())
	}

	controller := library.NewController(rt.repo, rt.cfg.GetAuth(),
		library.WithControllerLogger(rt.GetLogger("library")),
		library.WithControllerActivitySink(activitymap.LoggerSink(rt.GetLogger("activity"))),
	)
	library.RegisterRoutes(server.Router(), controller)

	addr := srv.GetAddr()
	if serveAddr != "" {
		addr = serveAddr
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errc <- server.Serve(addr)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-exitSignal():
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.GetShutdownTimeout())
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
