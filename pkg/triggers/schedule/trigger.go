// Package schedule provides the cron-based trigger type.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrCronMissing is returned when the settings carry no cron expression.
var ErrCronMissing = errors.New("schedule trigger cron expression is required")

// Detector fires on a cron schedule. Overlap and cooldown policy are the
// runner's concern; the cron chain only guards against handler panics.
type Detector struct {
	CronExpr string

	cron   *cron.Cron
	logger *slog.Logger
}

func NewDetector(settings map[string]any, logger *slog.Logger) (*Detector, error) {
	cronExpr, _ := settings["cron"].(string)

	detector := &Detector{
		CronExpr: cronExpr,
		logger: logger.With(
			"module", "schedule_trigger",
			"cron", cronExpr,
		),
	}

	err := detector.Validate()
	if err != nil {
		return nil, err
	}

	return detector, nil
}

func (d *Detector) Validate() error {
	if d.CronExpr == "" {
		return ErrCronMissing
	}

	_, err := cron.ParseStandard(d.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (d *Detector) Start(ctx context.Context, fire protocol.FireFunc) error {
	d.logger.InfoContext(ctx, "Starting schedule detection loop")

	d.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))

	_, err := d.cron.AddFunc(d.CronExpr, func() {
		payload := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"cron":      d.CronExpr,
		}

		fireErr := fire(ctx, payload)
		if fireErr != nil {
			d.logger.Error("Schedule fire failed", "error", fireErr)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to install cron entry: %w", err)
	}

	d.cron.Start()

	return nil
}

func (d *Detector) Stop(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Stopping schedule detection loop")

	if d.cron != nil {
		// Wait for an in-flight entry to finish before releasing.
		<-d.cron.Stop().Done()
	}

	return nil
}
