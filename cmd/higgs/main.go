package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"higgs-distributed/internal/app"
	"higgs-distributed/internal/domain"
	"higgs-distributed/internal/infrastructure"
)

var (
	configPath string
	overrides  infrastructure.Overrides
	numWorkers int
	exitCode   int
)

var rootCmd = &cobra.Command{
	Use:           "higgs",
	Short:         "Distributed H→ZZ*→4ℓ batch processing over a message queue",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var coordinateCmd = &cobra.Command{
	Use:   "coordinate",
	Short: "Partition the samples, dispatch units and collect the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.logger.Sync()

		dial := infrastructure.AMQPDialer(env.config.Broker, env.logger)
		coordinator := env.coordinator(dial)
		_, err = coordinator.Run(cmd.Context())
		return finish(env.logger, err)
	},
}

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Process units from the tasks queue until it stays empty",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.logger.Sync()

		ctx := cmd.Context()
		conn, err := infrastructure.DialAMQP(ctx, env.config.Broker.URL,
			env.config.Broker.ConnectRetries, env.config.Broker.ConnectInterval, env.logger)
		if err != nil {
			return finish(env.logger, err)
		}
		defer conn.Close()

		err = env.worker(conn).Run(ctx)
		if werr := env.telemetry.WriteFile(env.config.MetricsFile); werr != nil {
			env.logger.Warn("Failed to write metrics", zap.Error(werr))
		}
		return finish(env.logger, err)
	},
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run the coordinator and a pool of workers over an in-memory queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.logger.Sync()

		broker := infrastructure.NewMemoryBroker()
		coordinator := env.coordinator(broker.Dialer())
		newWorker := func(id int, conn domain.Connection) *app.Worker {
			return env.worker(conn)
		}
		_, err = app.RunLocal(cmd.Context(), env.logger, coordinator, broker.Dialer(), newWorker, numWorkers)
		return finish(env.logger, err)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.yaml", "Path to config file")
	flags.StringVar(&overrides.BrokerURL, "broker", "", "AMQP broker URL")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "Log level")
	flags.Float64Var(&overrides.Fraction, "fraction", 0, "Fraction of each subsample to process")
	flags.StringVar(&overrides.Output, "output", "", "Histogram output file")

	localCmd.Flags().IntVar(&numWorkers, "workers", 4, "Number of in-process workers")

	rootCmd.AddCommand(coordinateCmd, workCmd, localCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if exitCode == app.ExitOK {
			exitCode = app.ExitCode(err)
		}
	}
	os.Exit(exitCode)
}

type environment struct {
	config    *domain.Config
	logger    *zap.Logger
	telemetry *app.Telemetry
	codec     *infrastructure.MsgpackCodec
	catalog   *infrastructure.SourceCatalog
	info      domain.InfoTable
}

func setup() (*environment, error) {
	// Инициализация логгера
	logger := initLogger("info")

	var reader domain.ConfigReader = infrastructure.NewYAMLConfigReader(logger, overrides)
	config, err := reader.ReadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Обновляем уровень логирования
	logger = initLogger(config.LogLevel, config.LogFile)

	var info domain.InfoTable
	if config.Physics.InfoFile != "" {
		if info, err = infrastructure.ReadInfoTable(config.Physics.InfoFile); err != nil {
			return nil, fmt.Errorf("read info file: %w", err)
		}
	}

	return &environment{
		config:    config,
		logger:    logger,
		telemetry: app.NewTelemetry(),
		codec:     infrastructure.NewMsgpackCodec(),
		catalog:   infrastructure.NewSourceCatalog(logger, http.DefaultClient, config.Worker.CacheSize),
		info:      info,
	}, nil
}

func (e *environment) coordinator(dial domain.Dialer) *app.Coordinator {
	var reporter domain.Reporter
	if e.config.Output != "" {
		reporter = infrastructure.NewTXTHistogramWriter(e.logger, e.config.Output, e.config.Physics)
	}
	return app.NewCoordinator(e.logger, e.config, dial, e.codec, e.catalog, e.info, reporter, e.telemetry)
}

func (e *environment) worker(conn domain.Connection) *app.Worker {
	processor := app.NewEventProcessor(e.logger, e.catalog, e.info, e.config.Physics)
	return app.NewWorker(e.logger, conn, processor, e.codec, e.telemetry, e.config.Broker, e.config.Worker)
}

func finish(logger *zap.Logger, err error) error {
	exitCode = app.ExitCode(err)
	if err != nil {
		logger.Error("Run failed", zap.Int("exit_code", exitCode), zap.Error(err))
		return err
	}
	logger.Info("Run completed successfully")
	return nil
}

// initLogger initializes the logger with the specified level and log file name.
func initLogger(level string, logfileName ...string) *zap.Logger {
	config := zap.NewProductionConfig()

	switch level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	outputPath := []string{"stderr"}
	for _, item := range logfileName {
		if item != "" {
			outputPath = append(outputPath, item)
		}
	}

	config.OutputPaths = outputPath
	config.ErrorOutputPaths = outputPath
	config.EncoderConfig.TimeKey = "t"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.DisableCaller = false

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
