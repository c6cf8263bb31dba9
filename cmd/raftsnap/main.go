package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/raftsnap"
	"github.com/outofforest/raftsnap/snapshot"
	"github.com/outofforest/raftsnap/types"
)

func main() {
	ctx, cancel := signal.NotifyContext(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)),
		os.Interrupt, syscall.SIGTERM)

	err := app().RunContext(ctx, os.Args)
	if err != nil {
		logger.Get(ctx).Error("Command failed", zap.Error(err))
	}
	cancel()

	if err != nil {
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:  "raftsnap",
		Usage: "Inspect and maintain snapshot of the replicated log",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Usage:    "Directory containing the snapshot",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "io-workers",
				Value: types.DefaultConfig("").IOWorkers,
				Usage: "Number of goroutines executing filesystem operations",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "inspect",
				Usage:  "Verify the snapshot and print its metadata",
				Action: inspect,
			},
			{
				Name:   "sweep",
				Usage:  "Remove partial snapshots left by unfinished writers",
				Action: sweep,
			},
			{
				Name:   "remove",
				Usage:  "Remove the committed snapshot",
				Action: remove,
			},
		},
	}
}

func run(c *cli.Context, fn raftsnap.Func) error {
	config := types.DefaultConfig(c.String("dir"))
	config.IOWorkers = c.Int("io-workers")

	return raftsnap.Run(c.Context, config, nil, fn)
}

func inspect(c *cli.Context) error {
	return run(c, func(ctx context.Context, m *snapshot.Manager) error {
		r, err := m.OpenSnapshot(ctx)
		if err != nil {
			return err
		}
		if r == nil {
			_, err := fmt.Fprintln(c.App.Writer, "no snapshot")
			return errors.WithStack(err)
		}
		defer r.Close()

		metadata, err := r.ReadMetadata()
		if err != nil {
			return err
		}
		payloadSize, err := io.Copy(io.Discard, r.Input())
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(c.App.Writer,
			"path: %s\nlast included index: %d\nlast included term: %d\npayload size: %d\n",
			r.Path(), metadata.LastIncludedIndex, metadata.LastIncludedTerm, payloadSize)
		return errors.WithStack(err)
	})
}

func sweep(c *cli.Context) error {
	return run(c, func(ctx context.Context, m *snapshot.Manager) error {
		return m.RemovePartialSnapshots(ctx)
	})
}

func remove(c *cli.Context) error {
	return run(c, func(ctx context.Context, m *snapshot.Manager) error {
		return m.RemoveSnapshot(ctx)
	})
}
