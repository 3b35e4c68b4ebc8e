package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loadboard/internal/client"
	"loadboard/internal/config"
	"loadboard/internal/reconcile"
)

const initialLoadTimeout = 10 * time.Second

// startEngine checks the server, starts a reconcile engine against it and
// waits for the first full load. feed may be nil for one-shot commands.
func (c *commandContext) startEngine(ctx context.Context, cl *client.Client, feed reconcile.Feed) (*reconcile.Engine, error) {
	if _, err := cl.Status(ctx); err != nil {
		return nil, wrapAPIError(err, cl.BaseURL())
	}
	syncCfg := config.Default().Sync
	if cfg := c.configValue(); cfg != nil {
		syncCfg = cfg.Sync
	}
	opts := reconcile.OptionsFromConfig(syncCfg)
	opts.Logger = c.cliLogger()

	engine := reconcile.NewEngine(cl, feed, opts)
	if err := engine.Start(ctx); err != nil {
		return nil, err
	}
	if err := waitLoaded(ctx, engine, initialLoadTimeout); err != nil {
		engine.Stop()
		return nil, err
	}
	return engine, nil
}

// withEngine runs fn against a freshly loaded engine without a broadcast
// subscription and stops it afterwards.
func (c *commandContext) withEngine(ctx context.Context, fn func(*client.Client, *reconcile.Engine) error) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	engine, err := c.startEngine(ctx, cl, nil)
	if err != nil {
		return err
	}
	defer engine.Stop()
	return wrapAPIError(fn(cl, engine), cl.BaseURL())
}

func waitLoaded(ctx context.Context, engine *reconcile.Engine, timeout time.Duration) error {
	if engine.View().Version > 0 {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-engine.Changes():
			if engine.View().Version > 0 {
				return nil
			}
		case <-timer.C:
			return errors.New("timed out waiting for the initial order list")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runOp submits op and turns a rollback into a readable error.
func runOp(ctx context.Context, engine *reconcile.Engine, op reconcile.Op) (reconcile.Outcome, error) {
	out, err := engine.Do(ctx, op)
	if err == nil {
		return out, nil
	}
	var mutErr *reconcile.MutationError
	if errors.As(err, &mutErr) {
		if reconcile.IsRejected(err) {
			return out, fmt.Errorf("server rejected %s: %w", op.Kind, mutErr.Err)
		}
		return out, fmt.Errorf("%s did not reach the server: %w", op.Kind, mutErr.Err)
	}
	return out, fmt.Errorf("%s: %w", op.Kind, err)
}
