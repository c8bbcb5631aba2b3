package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/restq/restq/pkg/config"
	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/engine"
	"github.com/restq/restq/pkg/mapper"
	"github.com/restq/restq/pkg/metrics"
	"github.com/restq/restq/pkg/rest"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Reflect the schema and serve the REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	d, err := dialect.Get(cfg.DB.Dialect)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools := session.NewPoolManager(logger)
	defer pools.Close()
	if err := pools.Add(ctx, session.PoolConfig{
		Name:    cfg.DB.Name,
		Dialect: d,
		URL:     cfg.DB.ConnString,
		MaxOpen: cfg.DB.PoolSize,
	}, true); err != nil {
		return err
	}

	db, err := pools.Active()
	if err != nil {
		return err
	}
	if err := bootstrap(ctx, db, cfg.DB.Bootstrap); err != nil {
		return err
	}

	model := schema.NewDb(cfg.DB.Name, d, logger).
		WithTableFilter(cfg.Tables.Include, cfg.Tables.Exclude)
	if err := model.Startup(ctx, db); err != nil {
		return fmt.Errorf("schema reflection: %w", err)
	}

	filter := &mapper.ColumnFilter{
		Include: cfg.Columns.Include,
		Exclude: cfg.Columns.Exclude,
	}
	eng := engine.New(model, pools, filter, logger)

	var wg sync.WaitGroup
	if cfg.Server.MetricsAddr != "" {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Server.MetricsAddr})
	}

	srv := rest.NewServer(eng, logger, cfg.Server.BaseURL)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.ListenAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
		wg.Wait()
		return nil
	}
}

// bootstrap applies optional DDL scripts, used to seed embedded databases.
func bootstrap(ctx context.Context, db *sql.DB, scripts []string) error {
	for _, path := range scripts {
		ddl, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("bootstrap script %s: %w", path, err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("bootstrap script %s: %w", path, err)
		}
	}
	return nil
}
