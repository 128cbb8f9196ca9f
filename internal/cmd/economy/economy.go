// Package economy parses economy service flags and launches the service.
package economy

import (
	"context"
	"flag"

	server "github.com/edutown/economy/internal/economy/app"
	entrypoint "github.com/edutown/economy/internal/platform/cmd"
)

// Config holds economy command configuration.
type Config struct {
	Port int `env:"EDUTOWN_ECONOMY_PORT" envDefault:"8090"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The economy HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the economy HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEconomy, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
