// Package main provides the entry point for the PK/DDI simulation MCP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pkddi-mcp-server/internal/api"
	"github.com/pkddi-mcp-server/internal/config"
	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/mcp"
	"github.com/pkddi-mcp-server/internal/oracle"
	"github.com/pkddi-mcp-server/internal/setup"
	"github.com/pkddi-mcp-server/internal/store"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "pkddi-server",
		Short:         "Pharmacokinetic and drug-drug interaction simulation MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to pkddi.yaml (default: search ., ./config, /etc/pkddi-mcp-server)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override logging.format (json or text)")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(simulateCmd(flags))
	rootCmd.AddCommand(catalogCmd(flags))
	rootCmd.AddCommand(migrateCmd(flags))
	rootCmd.AddCommand(setupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, then the configuration file and environment, and applies flag overrides
func loadConfig(flags *globalFlags) (*domain.Config, *logrus.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	manager, err := config.NewManager(flags.configFile)
	if err != nil {
		return nil, nil, err
	}

	cfg := manager.GetConfig()
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Logging)
	if used := manager.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Debug("Configuration file loaded")
	}
	return cfg, logger, nil
}

// newLogger builds the process logger. Output goes to stderr so stdout stays free for MCP.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if strings.ToLower(cfg.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Server.HTTPAddr = httpAddr
			}

			services, closeOracle, err := mcp.NewServicesFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer closeOracle()

			var opts []mcp.ServerOption
			runs, err := store.Open(cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			if runs != nil {
				opts = append(opts, mcp.WithStore(runs))
				logger.WithField("driver", cfg.Store.Driver).Info("Run store opened")
			}

			server, err := mcp.NewServer(cfg.Server, services, logger, opts...)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := server.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				// stdin closed: stop the HTTP listener too
				stop()
				return err
			})
			if cfg.Server.HTTPAddr != "" {
				ops := api.NewServer(cfg.Server, services.Drugs, runs, logger)
				g.Go(func() error {
					return ops.Start(ctx, cfg.Server.HTTPAddr)
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("PK/DDI MCP server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "serve /health, /metrics and read-only /api/v1 endpoints on this address, e.g. :9090")
	return cmd
}

func migrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL run store schema",
	}

	withRunner := func(fn func(*store.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != store.DriverPostgres {
				return fmt.Errorf("migrations apply to the postgres store driver, got %q", cfg.Store.Driver)
			}

			runner, err := store.NewMigrationRunner(cfg.Store.DSN, logger)
			if err != nil {
				return err
			}
			defer runner.Close()
			return fn(runner)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  withRunner((*store.MigrationRunner).Up),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE:  withRunner((*store.MigrationRunner).Down),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: withRunner(func(runner *store.MigrationRunner) error {
			version, dirty, err := runner.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	})

	return cmd
}

func simulateCmd(flags *globalFlags) *cobra.Command {
	var (
		drug        string
		doseMg      float64
		frequency   float64
		concomitant []string
		patient     mcp.PatientInput
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a one-shot patient simulation and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			services, closeOracle, err := mcp.NewServicesFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer closeOracle()

			profile := patient.Profile()
			result, err := services.Simulator.SimulatePatient(cmd.Context(), &profile, drug, doseMg, frequency, concomitant)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&drug, "drug", "", "drug generic name")
	cmd.Flags().Float64Var(&doseMg, "dose", 0, "dose in mg")
	cmd.Flags().Float64Var(&frequency, "frequency", 0, "dosing interval in hours (default from simulation.default_frequency_hours)")
	cmd.Flags().StringSliceVar(&concomitant, "with", nil, "concomitant drugs")
	cmd.Flags().StringVar(&patient.PatientID, "patient-id", "CLI-001", "patient identifier")
	cmd.Flags().IntVar(&patient.Age, "age", 45, "patient age in years")
	cmd.Flags().StringVar(&patient.Gender, "gender", "", "patient gender")
	cmd.Flags().StringVar(&patient.CYP2D6Status, "cyp2d6", "Normal", "CYP2D6 metabolizer status")
	cmd.Flags().StringVar(&patient.CYP3A4Activity, "cyp3a4", "Normal", "CYP3A4 activity")
	cmd.Flags().Float64Var(&patient.WeightKg, "weight", 70, "weight in kg")
	cmd.Flags().Float64Var(&patient.HeightCm, "height", 170, "height in cm")
	cmd.Flags().StringSliceVar(&patient.Conditions, "condition", nil, "medical conditions")
	cmd.Flags().StringSliceVar(&patient.CurrentMedications, "current-medication", nil, "current medications")
	_ = cmd.MarkFlagRequired("drug")
	_ = cmd.MarkFlagRequired("dose")

	return cmd
}

func catalogCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the drugs in the reference catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			services, err := mcp.NewServices(oracle.NoopOracle{}, domain.SimulationConfig{
				MaxConcurrency:        1,
				DefaultFrequencyHours: 24,
				InteractionCacheSize:  1,
			}, logger)
			if err != nil {
				return err
			}

			var drugs []domain.DrugProperties
			for _, name := range services.Drugs.Names() {
				drug, err := services.Drugs.Lookup(name)
				if err != nil {
					return err
				}
				drugs = append(drugs, drug)
			}

			if asJSON {
				return printJSON(cmd, drugs)
			}
			out := cmd.OutOrStdout()
			for _, d := range drugs {
				fmt.Fprintf(out, "%-14s %-16s t1/2=%gh F=%g Vd=%g %v\n",
					d.GenericName, d.DrugClass, d.HalfLifeHours, d.Bioavailability, d.VolumeOfDistribution, d.Metabolism)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func setupCmd() *cobra.Command {
	var (
		configPath string
		opts       setup.Options
	)

	resolvePath := func() (string, error) {
		if configPath != "" {
			return configPath, nil
		}
		return setup.DesktopConfigPath()
	}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&configPath, "client-config", "", "client configuration file (default: platform location)")

	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the server entry in the client configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			entry, err := setup.Register(path, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", setup.ServerName, path)
			return printJSON(cmd, entry)
		},
	}
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "server binary path (default: located automatically)")
	register.Flags().StringVar(&opts.ConfigFile, "server-config", "", "pkddi.yaml passed to the server")
	register.Flags().StringVar(&opts.DataDir, "data-dir", setup.DefaultDataDir(), "directory for the SQLite run store; empty disables it")
	register.Flags().StringVar(&opts.APIKey, "api-key", "", "Gemini API key for the oracle")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the registration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			st, err := setup.GetStatus(path)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
