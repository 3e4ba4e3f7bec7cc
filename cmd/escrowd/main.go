// File: cmd/escrowd/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/escrowd/internal/anchor"
	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/engine"
	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/notification"
	"github.com/smartdevs17/escrowd/internal/server"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/internal/vault"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	storage      storage.Storage
	anchor       anchor.Anchor
	vault        *vault.Vault
	engine       *engine.SettlementEngine
	notification *notification.NotificationManager
	metrics      *metrics.Manager
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeAnchor(); err != nil {
		return fmt.Errorf("failed to initialize anchor: %w", err)
	}

	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	if err := app.initializeEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	app.storage = storage.NewStorageWithMetrics(store, app.metrics)

	if err := app.storage.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := app.storage.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.vault = vault.New(app.storage)

	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeAnchor initializes the settlement anchor
func (app *Application) initializeAnchor() error {
	app.logger.WithField("mode", app.config.Chain.Mode).Info("Initializing settlement anchor")

	var err error
	app.anchor, err = anchor.New(&app.config.Chain)
	if err != nil {
		return fmt.Errorf("failed to create anchor: %w", err)
	}

	app.logger.Info("Settlement anchor initialized successfully")
	return nil
}

// initializeNotification initializes the notification manager
func (app *Application) initializeNotification() error {
	app.logger.Info("Initializing notification manager")

	app.notification = notification.NewNotificationManager(&app.config.Notifications, app.storage)
	app.notification.SetMetricsManager(app.metrics)

	if err := app.notification.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start notification manager: %w", err)
	}

	app.logger.Info("Notification manager initialized successfully")
	return nil
}

// initializeEngine initializes the settlement engine
func (app *Application) initializeEngine() error {
	app.logger.Info("Initializing settlement engine")

	app.engine = engine.NewEngine(app.storage, app.vault, app.anchor, app.notification, app.metrics, &app.config.Fees)

	if err := app.engine.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start settlement engine: %w", err)
	}

	app.logger.Info("Settlement engine initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	var err error
	app.server, err = server.NewHTTPServer(
		&app.config.Server,
		app.engine,
		app.storage,
		app.anchor,
		app.notification,
		app.metrics,
		AppVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting escrow settlement service")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"anchor_mode":    app.config.Chain.Mode,
		"storage_type":   app.config.Storage.Type,
	}).Info("Escrow settlement service started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping escrow settlement service")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.engine != nil {
		if err := app.engine.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop settlement engine")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}

	if app.anchor != nil {
		if err := app.anchor.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close anchor")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Escrow settlement service stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "escrowd",
	Short:   "Escrow Settlement Service",
	Long:    `A ledger-authoritative escrow settlement service: escrows are funded into per-escrow vaults, released in percentages with fee splitting, or cancelled with a refund, and every transition is anchored with a settlement receipt.`,
	Version: AppVersion,
	RunE:    runService,
}

// runService is the main command to run the settlement service
func runService(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Escrow Settlement Service %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Anchor mode: %s\n", cfg.Chain.Mode)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Fee percent: %d\n", cfg.Fees.FeePercent)

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing escrow settlement service connectivity...")

		fmt.Printf("Testing settlement anchor (%s)...\n", cfg.Chain.Mode)
		anc, err := anchor.New(&cfg.Chain)
		if err != nil {
			return fmt.Errorf("failed to create anchor: %w", err)
		}
		defer anc.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := anc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("anchor health check failed: %w", err)
		}
		fmt.Println("✓ Settlement anchor healthy")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
