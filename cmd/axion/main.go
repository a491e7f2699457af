package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/axiondb/axion/pkg/backend/memdb"
	"github.com/axiondb/axion/pkg/backend/pgbackend"
	"github.com/axiondb/axion/pkg/backend/sqlbackend"
	"github.com/axiondb/axion/pkg/config"
	"github.com/axiondb/axion/pkg/json"
	"github.com/axiondb/axion/pkg/logger"
	"github.com/axiondb/axion/pkg/pool"
	"github.com/axiondb/axion/pkg/session"

	// Register the MySQL database/sql driver for the sql backend
	_ "github.com/go-sql-driver/mysql"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	viper.SetEnvPrefix("AXION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root := &cobra.Command{
		Use:   "axion",
		Short: "Axion - pooled database session driver",
		Long: `Axion is a client driver providing managed session pools, per-session
statement caching and structured error reporting over pluggable database
backends.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Axion v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newBenchCommand())
	root.AddCommand(newStatsCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// benchFlags holds the bench command configuration.
type benchFlags struct {
	configFile  string
	backendName string
	dsn         string
	user        string
	password    string
	statement   string
	workers     int
	duration    time.Duration
	logLevel    string
	trace       bool
}

func newBenchCommand() *cobra.Command {
	flags := &benchFlags{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark pool acquire/execute/release throughput",
		Long: `Run a fixed-duration benchmark that repeatedly acquires a session from
the pool, executes one statement and releases the session, across the
given number of workers.

Example:
  axion bench --config pool.yaml --workers 8 --duration 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to pool configuration YAML file")
	cmd.Flags().StringVar(&flags.backendName, "backend", "memdb", "Backend to benchmark against (memdb, postgres, mysql)")
	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "Connect string (overrides config file and AXION_DSN)")
	cmd.Flags().StringVar(&flags.user, "user", "", "User name (overrides config file and AXION_USER)")
	cmd.Flags().StringVar(&flags.password, "password", "", "Password (overrides config file and AXION_PASSWORD)")
	cmd.Flags().StringVar(&flags.statement, "statement", "select 1", "Statement executed on each iteration")
	cmd.Flags().IntVar(&flags.workers, "workers", runtime.NumCPU(), "Number of concurrent workers")
	cmd.Flags().DurationVar(&flags.duration, "duration", 10*time.Second, "Benchmark duration")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "Emit acquire spans to stdout")

	return cmd
}

func newStatsCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Create a pool from a configuration file and print its statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPoolConfig(configFile, &benchFlags{backendName: "memdb"})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			backend, err := buildBackend("memdb", cfg)
			if err != nil {
				return err
			}
			p, err := pool.New(ctx, pool.Options{Config: cfg, Backend: backend, Logger: logger.Get()})
			if err != nil {
				return err
			}
			defer p.Close(ctx, true)

			data, err := json.MarshalIndent(p.GetStats(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to pool configuration YAML file")
	return cmd
}

// loadPoolConfig merges the config file, environment and flags, in
// ascending precedence.
func loadPoolConfig(configFile string, flags *benchFlags) (config.PoolConfig, error) {
	var cfg config.PoolConfig
	if configFile != "" {
		if err := config.Load(configFile, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.DSN = v
	}
	if v := viper.GetString("user"); v != "" {
		cfg.User = v
	}
	if v := viper.GetString("password"); v != "" {
		cfg.Password = v
	}
	if flags.dsn != "" {
		cfg.DSN = flags.dsn
	}
	if flags.user != "" {
		cfg.User = flags.user
	}
	if flags.password != "" {
		cfg.Password = flags.password
	}
	if cfg.Max == 0 {
		cfg.Min, cfg.Max, cfg.Increment = 2, 8, 2
	}
	if flags.backendName == "memdb" && cfg.DSN == "" {
		cfg.DSN = "memdb://bench"
		if cfg.User == "" {
			cfg.User, cfg.Password = "bench", "bench"
		}
	}
	return cfg, nil
}

// buildBackend selects the session backend for the given name.
func buildBackend(name string, cfg config.PoolConfig) (session.Backend, error) {
	switch name {
	case "memdb":
		b := memdb.New().AddUser(cfg.User, cfg.Password)
		b.ScriptRows("select 1", int64(1))
		return b, nil
	case "postgres":
		return pgbackend.New(), nil
	case "mysql":
		return sqlbackend.New("mysql"), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (expected memdb, postgres or mysql)", name)
	}
}

// initTracing installs a stdout span exporter and returns its shutdown
// function.
func initTracing() func(context.Context) error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return func(context.Context) error { return nil }
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown
}

// runBench executes the benchmark loop.
func runBench(flags *benchFlags) error {
	if err := logger.Init(logger.Config{Level: flags.logLevel, Encoding: "console"}); err != nil {
		return err
	}
	defer logger.Sync()

	if flags.trace {
		shutdown := initTracing()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	cfg, err := loadPoolConfig(flags.configFile, flags)
	if err != nil {
		return err
	}
	backend, err := buildBackend(flags.backendName, cfg)
	if err != nil {
		return err
	}

	log := logger.Get().With(
		zap.String("component", "axion-cli"),
		zap.String("backend", backend.Name()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := pool.New(ctx, pool.Options{Config: cfg, Backend: backend, Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer p.Close(ctx, true)

	log.Info("starting benchmark",
		zap.String("pool", p.Name()),
		zap.Int("workers", flags.workers),
		zap.Duration("duration", flags.duration),
		zap.Int("pool_max", p.Max()))

	benchCtx, benchCancel := context.WithTimeout(ctx, flags.duration)
	defer benchCancel()

	counts := make([]int64, flags.workers)
	g, gctx := errgroup.WithContext(benchCtx)
	startTime := time.Now()
	for i := 0; i < flags.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				s, err := p.Acquire(gctx)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				_, execErr := s.Execute(gctx, flags.statement)
				if relErr := p.Release(gctx, s); relErr != nil {
					return relErr
				}
				if execErr != nil && gctx.Err() == nil {
					return execErr
				}
				if gctx.Err() != nil {
					return nil
				}
				counts[worker]++
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	duration := time.Since(startTime)
	var total int64
	for _, n := range counts {
		total += n
	}
	stats := p.GetStats()

	fmt.Printf("Backend:     %s\n", backend.Name())
	fmt.Printf("Pool:        %s (min=%d max=%d increment=%d)\n",
		p.Name(), p.Min(), p.Max(), p.Increment())
	fmt.Printf("Workers:     %d\n", flags.workers)
	fmt.Printf("Duration:    %v\n", duration.Round(time.Millisecond))
	fmt.Printf("Iterations:  %d\n", total)
	fmt.Printf("Throughput:  %.0f acquire/exec/release per second\n",
		float64(total)/duration.Seconds())
	fmt.Printf("Sessions:    opened=%d busy=%d\n", stats.Opened, stats.Busy)
	return nil
}
