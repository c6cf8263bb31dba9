package snapshot

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/outofforest/raftsnap/fileio"
	"github.com/outofforest/raftsnap/snapshot/format"
)

const bufferSize = 64 * 1024

func newWriter(ctx context.Context, class *fileio.Class, dir, path string, file *os.File) *Writer {
	w := &Writer{
		ctx:   ctx,
		class: class,
		dir:   dir,
		path:  path,
		file:  file,
	}
	w.buf = bufio.NewWriterSize(fileWriter{w: w}, bufferSize)
	return w
}

// Writer writes the snapshot to the temporary file.
// The file is built sequentially: metadata first, then any amount of payload.
type Writer struct {
	ctx   context.Context //nolint:containedctx
	class *fileio.Class
	dir   string
	path  string
	file  *os.File
	buf   *bufio.Writer
	size  uint64

	metadataWritten bool
	closed          bool
	closeErr        error
	finished        bool
}

// Path returns path of the temporary file.
func (w *Writer) Path() string {
	return w.path
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() uint64 {
	return w.size
}

// WriteMetadata writes header and metadata. It must be called once, before any payload is written.
func (w *Writer) WriteMetadata(metadata format.Metadata) error {
	switch {
	case w.closed:
		return errors.Wrap(ErrLogic, "writer is closed")
	case w.metadataWritten:
		return errors.Wrap(ErrLogic, "metadata has been already written")
	}

	w.metadataWritten = true
	return w.write(format.Encode(metadata))
}

// Output returns the sink for payload bytes.
func (w *Writer) Output() io.Writer {
	return payloadWriter{w: w}
}

// Close flushes buffered data, syncs and closes the file.
// File is released even if flushing fails.
func (w *Writer) Close() error {
	if w.closed {
		return w.closeErr
	}
	w.closed = true

	flushErr := w.buf.Flush()

	var released bool
	err := w.class.Do(context.WithoutCancel(w.ctx), func() error {
		released = true

		var syncErr error
		if flushErr == nil {
			syncErr = errors.WithStack(w.file.Sync())
		}
		if err := w.file.Close(); err != nil && syncErr == nil {
			return errors.WithStack(err)
		}
		return syncErr
	})
	if !released {
		_ = w.file.Close()
	}

	switch {
	case flushErr != nil:
		w.closeErr = flushErr
	default:
		w.closeErr = err
	}
	return w.closeErr
}

func (w *Writer) write(p []byte) error {
	n, err := w.buf.Write(p)
	w.size += uint64(n)
	return err
}

type payloadWriter struct {
	w *Writer
}

func (pw payloadWriter) Write(p []byte) (int, error) {
	switch {
	case pw.w.closed:
		return 0, errors.Wrap(ErrLogic, "writer is closed")
	case !pw.w.metadataWritten:
		return 0, errors.Wrap(ErrLogic, "metadata must be written before payload")
	}

	size := pw.w.size
	err := pw.w.write(p)
	return int(pw.w.size - size), err
}

type fileWriter struct {
	w *Writer
}

func (fw fileWriter) Write(p []byte) (int, error) {
	var n int
	err := fw.w.class.Do(fw.w.ctx, func() error {
		var err error
		n, err = fw.w.file.Write(p)
		return errors.WithStack(err)
	})
	return n, err
}
