package snapshot

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// syncDir makes the directory entries (renames, removals) durable.
func syncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "opening directory %s failed", dir)
	}
	defer unix.Close(fd) //nolint:errcheck

	return errors.Wrapf(unix.Fsync(fd), "syncing directory %s failed", dir)
}
