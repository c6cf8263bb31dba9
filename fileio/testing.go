package fileio

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/parallel"
	"github.com/outofforest/qa"
)

// NewTesting starts the scheduler for the lifetime of the test.
// It returns the scheduler together with the context which should be used by the test.
func NewTesting(t *testing.T, config Config) (*Scheduler, context.Context) {
	s := New(config, nil)

	group := parallel.NewGroup(qa.NewContext(t))
	group.Spawn("scheduler", parallel.Fail, s.Run)
	t.Cleanup(func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			require.NoError(t, err)
		}
	})

	return s, group.Context()
}
