package raftsnap

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/outofforest/parallel"
	"github.com/outofforest/raftsnap/fileio"
	"github.com/outofforest/raftsnap/snapshot"
	"github.com/outofforest/raftsnap/types"
)

// Func is the function receiving the snapshot manager.
type Func func(ctx context.Context, m *snapshot.Manager) error

// Run starts I/O scheduler and runs the function with the snapshot manager configured for the directory.
// Scheduler is stopped once the function returns.
func Run(ctx context.Context, config types.Config, registerer prometheus.Registerer, fn Func) error {
	scheduler := fileio.New(fileio.Config{Workers: config.IOWorkers}, registerer)
	m := snapshot.New(config.Dir, scheduler.Class(config.IOClass, config.IOShares))

	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("scheduler", parallel.Fail, scheduler.Run)
		spawn("snapshot", parallel.Exit, func(ctx context.Context) error {
			return fn(ctx, m)
		})
		return nil
	})
	if err != nil && (ctx.Err() != nil || !errors.Is(err, context.Canceled)) {
		return err
	}
	return nil
}
