package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/auth"
	"github.com/JakeFAU/gridrank/internal/clock/system"
	"github.com/JakeFAU/gridrank/internal/logging"
	"github.com/JakeFAU/gridrank/internal/scan"
	"github.com/JakeFAU/gridrank/internal/server"
	pgstore "github.com/JakeFAU/gridrank/internal/storage/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg, nil)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

type scanFlags struct {
	query    string
	near     string
	placeID  string
	gridSize int
	stepKm   float64
	radius   int
	limit    int
	save     bool
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one grid scan and print it as JSON",
		Long: `Runs a single-place grid scan with the configured providers and stores,
then prints the result to stdout. Use --save to persist it like save=1 on the
HTTP API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg, nil)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer app.Close()

			res, err := app.Scans().Scan(cmd.Context(), f.request())
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.query, "q", "", "search query, e.g. \"cafe\"")
	flags.StringVar(&f.near, "near", "", "center location to geocode")
	flags.StringVar(&f.placeID, "place-id", "", "provider place id of the target business")
	flags.IntVar(&f.gridSize, "grid-size", scan.DefaultGridSize, "odd grid size (3 or 5)")
	flags.Float64Var(&f.stepKm, "step-km", scan.DefaultStepKm, "distance between grid points in km")
	flags.IntVar(&f.radius, "radius", scan.DefaultRadius, "search radius in meters")
	flags.IntVar(&f.limit, "limit", scan.DefaultLimit, "results per search page")
	flags.BoolVar(&f.save, "save", false, "persist the scan")
	for _, name := range []string{"q", "near", "place-id"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (f scanFlags) request() scan.Request {
	return scan.Request{
		Query:   f.query,
		Near:    f.near,
		PlaceID: f.placeID,
		Options: scan.Options{
			GridSize: f.gridSize,
			StepKm:   f.stepKm,
			Radius:   f.radius,
			Limit:    f.limit,
		},
		Save: f.save,
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return errors.New("db.dsn is required")
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			if err := pgstore.Migrate(cfg.DB.DSN, logger.Named("migrate")); err != nil {
				return err
			}
			logger.Info("migrations applied", zap.String("table", cfg.DB.Table))
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			manager, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return fmt.Errorf("auth.jwt_secret: %w", err)
			}
			token, err := manager.Issue(subject, ttl, system.New().Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (caller identity)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
