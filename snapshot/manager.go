package snapshot

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/raftsnap/fileio"
)

const (
	fileName      = "snapshot"
	partialPrefix = fileName + ".partial."
)

// New creates snapshot manager storing the snapshot in the directory.
// All the filesystem operations are executed using the scheduling class.
func New(dir string, class *fileio.Class) *Manager {
	return &Manager{
		dir:   dir,
		class: class,
	}
}

// Manager manages the snapshot of single replicated entity.
// There is at most one committed snapshot at a time, new one replaces the previous one.
type Manager struct {
	dir   string
	class *fileio.Class
}

// SnapshotPath returns path of the committed snapshot.
func (m *Manager) SnapshotPath() string {
	return filepath.Join(m.dir, fileName)
}

// StartSnapshot creates writer storing the new snapshot in a temporary file.
// Committed snapshot is not touched until FinishSnapshot is called.
func (m *Manager) StartSnapshot(ctx context.Context) (*Writer, error) {
	path := filepath.Join(m.dir, partialPrefix+uuid.NewString())

	var file *os.File
	err := m.class.Do(ctx, func() error {
		if err := os.MkdirAll(m.dir, 0o700); err != nil {
			return errors.WithStack(err)
		}

		var err error
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	logger.Get(ctx).Debug("Snapshot started", zap.String("path", path))

	return newWriter(ctx, m.class, m.dir, path, file), nil
}

// FinishSnapshot atomically replaces the committed snapshot with the one stored by the writer.
// Writer must be closed before.
func (m *Manager) FinishSnapshot(ctx context.Context, w *Writer) error {
	switch {
	case w.dir != m.dir:
		return errors.Wrapf(ErrLogic, "writer belongs to directory %s", w.dir)
	case !w.closed:
		return errors.Wrap(ErrLogic, "writer must be closed before snapshot is finished")
	case w.closeErr != nil:
		return errors.Wrap(ErrLogic, "writer has not been closed cleanly")
	case w.finished:
		return errors.Wrap(ErrLogic, "snapshot has been already finished")
	}

	path := m.SnapshotPath()
	err := m.class.Do(ctx, func() error {
		if err := os.Rename(w.path, path); err != nil {
			return errors.WithStack(err)
		}
		return syncDir(m.dir)
	})
	if err != nil {
		return err
	}
	w.finished = true

	logger.Get(ctx).Info("Snapshot committed", zap.String("path", path), zap.Uint64("size", w.size))

	return nil
}

// OpenSnapshot opens the committed snapshot.
// If there is no snapshot, nil is returned without an error.
func (m *Manager) OpenSnapshot(ctx context.Context) (*Reader, error) {
	path := m.SnapshotPath()

	var file *os.File
	var size int64
	err := m.class.Do(ctx, func() error {
		var err error
		file, err = os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return errors.WithStack(err)
		}

		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			file = nil
			return errors.WithStack(err)
		}
		size = info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, nil //nolint:nilnil
	}

	return newReader(ctx, m.class, path, file, uint64(size)), nil
}

// RemovePartialSnapshots removes temporary files left by writers which were never finished.
// It should be called before any snapshot is started.
func (m *Manager) RemovePartialSnapshots(ctx context.Context) error {
	var entries []fs.DirEntry
	err := m.class.Do(ctx, func() error {
		var err error
		entries, err = os.ReadDir(m.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.WithStack(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	partials := lo.FilterMap(entries, func(e fs.DirEntry, _ int) (string, bool) {
		return filepath.Join(m.dir, e.Name()), !e.IsDir() && isPartial(e.Name())
	})
	if len(partials) == 0 {
		return nil
	}

	log := logger.Get(ctx)
	for _, path := range partials {
		err := m.class.Do(ctx, func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errors.WithStack(err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("Partial snapshot removed", zap.String("path", path))
	}

	return m.class.Do(ctx, func() error {
		return syncDir(m.dir)
	})
}

// RemoveSnapshot removes the committed snapshot. It is not an error if there is no snapshot.
func (m *Manager) RemoveSnapshot(ctx context.Context) error {
	path := m.SnapshotPath()

	var removed bool
	err := m.class.Do(ctx, func() error {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return errors.WithStack(err)
		}
		removed = true
		return syncDir(m.dir)
	})
	if err != nil {
		return err
	}

	if removed {
		logger.Get(ctx).Info("Snapshot removed", zap.String("path", path))
	}
	return nil
}

func isPartial(name string) bool {
	return strings.HasPrefix(name, partialPrefix)
}
