package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"whiteboard/internal/app"
	"whiteboard/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "whiteboard",
		Usage: "collaborative whiteboard lobby server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a JSON config file",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG_FILE"),
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP listen port (overrides config)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "HTTP listen host (overrides config)",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "log file and line numbers",
				Sources: cli.EnvVars(config.EnvPrefix + "DEBUG"),
			},
		},
		Action: run,
	}
}

// loadConfig resolves file > env > defaults, then applies command line overrides
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadConfigWithPrecedence(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if cmd.IsSet("port") {
		cfg.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("host") {
		cfg.HTTP.Host = cmd.String("host")
	}
	return cfg, nil
}

// run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts down
func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	log.Printf("Shutting down gracefully")

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
