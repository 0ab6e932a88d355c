package tablepp

import (
	"context"

	"github.com/Zhukowych/tablepp/internal/drift"
	"github.com/Zhukowych/tablepp/internal/engine"
	"github.com/Zhukowych/tablepp/internal/model"
)

// DriftResult is the outcome of Verify.
type DriftResult = drift.Result

// Migrate synchronizes every physical table with the registry and reloads
// the models. It is safe to run repeatedly: without registry changes it
// applies nothing.
func (c *Client) Migrate(ctx context.Context) (*SyncReport, error) {
	report, err := c.mutateSchema(ctx, func(context.Context, schemaTx) error { return nil })
	if err != nil {
		return nil, err
	}
	if n := len(report.Applied); n > 0 {
		c.logger.Info("migrated", "operations", n, "skipped", len(report.Skipped))
	}
	return report, nil
}

// Plan returns the physical changes Migrate would make, without executing
// them.
func (c *Client) Plan(ctx context.Context) (*SyncPlan, error) {
	models, err := c.builder(c.registry).BuildAll(ctx)
	if err != nil {
		return nil, err
	}
	return c.sync.Plan(ctx, c.db, models)
}

// Verify compares the physical tables with the registry by schema hash.
// Drift is reported both as the result and as a *DriftError.
func (c *Client) Verify(ctx context.Context) (*DriftResult, error) {
	models, err := c.builder(c.registry).BuildAll(ctx)
	if err != nil {
		return nil, err
	}
	result, err := c.detector.Detect(ctx, c.db, engine.Expected(models))
	if err != nil {
		return nil, err
	}
	if result.HasDrift {
		return result, &DriftError{Result: result}
	}
	return result, nil
}
