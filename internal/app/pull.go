package app

import (
	"context"
	"errors"
	"time"

	"github.com/batisback/loyverse-daily-sync/internal/service"
)

// Pull ingests one day's API window into the warehouse without running
// detection.
func (a *App) Pull(ctx context.Context, opts PullOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn 未配置，无法拉取数据")
	}
	if closeStore != nil {
		defer closeStore()
	}

	client := a.newFetcher()
	svc := service.New(a.Config, nil, client, client, store, nil, nil, a.Logger)

	day := opts.Day
	if day.IsZero() {
		day = time.Now().UTC()
	}

	return svc.Ingest(ctx, day)
}
