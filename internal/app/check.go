package app

import (
	"context"
	"errors"
	"fmt"
)

// CheckNow evaluates one registered trip immediately.
func (a *App) CheckNow(ctx context.Context, tripID string) error {
	reg, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.close()
	if reg.store == nil {
		return errors.New("database not configured; cannot load trip")
	}

	rdb := a.newRedis()
	if rdb != nil {
		defer rdb.Close()
	}
	publisher := a.newPublisher()
	defer publisher.Close()

	svc := a.buildService(reg, rdb, publisher, nil)
	state, err := svc.CheckNow(ctx, tripID)
	if err != nil && !state.IsTerminal() {
		return err
	}

	fmt.Fprintf(a.Out, "trip %s: %s\n", tripID, state)
	if err != nil {
		fmt.Fprintf(a.Out, "reason: %s\n", sanitizeInline(err.Error()))
	}
	return nil
}
