package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/conveyor-automation/conveyor/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "conveyor-server",
		EnableShellCompletion: true,
		Usage:                 "Start the orchestrator: trigger manager, dispatcher, and job queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "workflows-path",
				Usage:   "Directory holding workflow JSON definitions",
				Value:   "./data",
				Sources: cli.EnvVars("WORKFLOWS_PATH"),
			},
			&cli.StringFlag{
				Name:    "triggers-path",
				Usage:   "JSON file with trigger registrations to load on boot",
				Value:   "",
				Sources: cli.EnvVars("TRIGGERS_PATH"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres URL for the job queue (in-memory queue if empty)",
				Value:   "",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the webhook trigger listener (disabled if 0)",
				Value:   0,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port for the prometheus /metrics endpoint (disabled if 0)",
				Value:   0,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
			&cli.IntFlag{
				Name:    "dispatch-buffer",
				Usage:   "Size of the trigger-to-queue hand-off channel",
				Value:   128,
				Sources: cli.EnvVars("DISPATCH_BUFFER"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			server := NewServer(ServerConfig{
				WorkflowsPath:  command.String("workflows-path"),
				TriggersPath:   command.String("triggers-path"),
				DatabaseURL:    command.String("database-url"),
				WebhookPort:    int(command.Int("webhook-port")),
				MetricsPort:    int(command.Int("metrics-port")),
				DispatchBuffer: int(command.Int("dispatch-buffer")),
			}, log.WithModule("conveyor-server"))

			return server.Run(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
