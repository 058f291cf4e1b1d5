package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/conveyor-automation/conveyor/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "conveyor",
		Usage:                 "Create, validate, and run workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "workflow",
				Aliases: []string{"wf"},
				Usage:   "Manage workflow definitions",
				Commands: []*cli.Command{
					{
						Name:      "validate",
						Usage:     "Compile a workflow file and report violations",
						ArgsUsage: "<workflow.json>",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							log.Setup(cmd.String("log-level"))

							return validateWorkflow(ctx, cmd.Args().First())
						},
					},
					{
						Name:      "run",
						Aliases:   []string{"r"},
						Usage:     "Execute a workflow file locally, once",
						ArgsUsage: "<workflow.json>",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:    "var",
								Aliases: []string{"v"},
								Usage:   "Initial variable as key=value (repeatable)",
							},
						},
						Action: func(ctx context.Context, cmd *cli.Command) error {
							log.Setup(cmd.String("log-level"))

							return runWorkflow(ctx, cmd.Args().First(), cmd.StringSlice("var"))
						},
					},
				},
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("conveyor").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
