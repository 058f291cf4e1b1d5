package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/conveyor-automation/conveyor/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "conveyor-robot",
		EnableShellCompletion: true,
		Usage:                 "Start a robot agent that claims and executes workflow jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "robot-id",
				Aliases: []string{"id"},
				Usage:   "Custom robot ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ROBOT_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Postgres URL of the shared job queue",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "workflows-path",
				Usage:   "Directory holding workflow JSON definitions",
				Value:   "./data",
				Sources: cli.EnvVars("WORKFLOWS_PATH"),
			},
			&cli.StringSliceFlag{
				Name:    "capability",
				Usage:   "Capability tag offered by this robot (repeatable)",
				Sources: cli.EnvVars("ROBOT_CAPABILITIES"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Delay between claim attempts when the queue is empty",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
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

			robotID := command.String("robot-id")
			if robotID == "" {
				robotID = "robot-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("conveyor-robot").With("robot_id", robotID)

			robot := NewRobot(RobotConfig{
				RobotID:       robotID,
				DatabaseURL:   command.String("database-url"),
				WorkflowsPath: command.String("workflows-path"),
				Capabilities:  command.StringSlice("capability"),
				PollInterval:  command.Duration("poll-interval"),
			}, logger)

			return robot.Run(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
