package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-library"
	"github.com/goliatone/go-library/config"
	"github.com/goliatone/go-library/persistence"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

var (
	// Global flags
	configPath string
	dumpConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "librarian",
	Short: "Library management service",
	Long: `librarian serves the library HTTP API: user signup and login,
an admin managed book catalog, and the borrow/return ledger.

Examples:
  librarian serve --config library.yml
  librarian migrate
  librarian create-admin --username root --email root@example.com`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LIBRARY_CONFIG"), "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "Print the resolved configuration")
}

type runtime struct {
	cfg    *config.BaseConfig
	logger *glog.BaseLogger
	store  *persistence.Store
	db     *bun.DB
	repo   library.RepositoryManager
}

func (r *runtime) GetLogger(name string) glog.Logger {
	return r.logger.GetLogger(name)
}

func (r *runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// bootstrap loads config, builds the logger and opens the database
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(levelFromString(cfg.GetLogging().Level)),
		glog.WithName("librarian"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	if dumpConfig {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg))
		fmt.Println("============")
	}

	rt := &runtime{cfg: cfg, logger: lgr}

	if cfg.UsesDefaultSigningKey() {
		rt.GetLogger("config").Warn("using the default signing key, set LIBRARY_AUTH__SIGNING_KEY")
	}

	library.PasswordCost = cfg.GetAuth().GetPasswordCost()

	store, err := persistence.Open(ctx, cfg.GetPersistence(), rt.GetLogger("persistence"))
	if err != nil {
		return nil, err
	}

	migrations, err := library.MigrationsFor(store.DB().Dialect().Name())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	store.RegisterMigrations(migrations)

	rt.store = store
	rt.db = store.DB()
	rt.repo = library.NewRepositoryManager(rt.db)

	return rt, nil
}

func (r *runtime) migrate(ctx context.Context) error {
	if err := r.store.Migrate(ctx); err != nil {
		return err
	}
	r.logMigrationReport("applied")
	return nil
}

func (r *runtime) rollback(ctx context.Context) error {
	if err := r.store.Rollback(ctx); err != nil {
		return err
	}
	r.logMigrationReport("rolled back")
	return nil
}

func (r *runtime) logMigrationReport(action string) {
	logger := r.GetLogger("migrate")
	report := r.store.Report()
	if report == nil || report.IsZero() {
		logger.Info("schema up to date")
		return
	}
	logger.Info("migrations "+action, "group", report.ID, "migrations", report.Migrations.String())
}

func levelFromString(level string) string {
	switch strings.ToLower(level) {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "warn":
		return glog.Warn
	case "error":
		return glog.Error
	default:
		return glog.Info
	}
}

func exitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
