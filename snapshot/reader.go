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

func newReader(ctx context.Context, class *fileio.Class, path string, file *os.File, size uint64) *Reader {
	r := &Reader{
		ctx:   ctx,
		class: class,
		path:  path,
		file:  file,
		size:  size,
	}
	r.buf = bufio.NewReaderSize(fileReader{r: r}, bufferSize)
	return r
}

// Reader reads the committed snapshot.
// Metadata must be read and verified before payload is accessible.
type Reader struct {
	ctx   context.Context //nolint:containedctx
	class *fileio.Class
	path  string
	file  *os.File
	size  uint64
	buf   *bufio.Reader

	metadata    *format.Metadata
	metadataErr error
	closed      bool
}

// Path returns path of the snapshot file.
func (r *Reader) Path() string {
	return r.path
}

// Size returns the size of the snapshot file, including header and metadata.
func (r *Reader) Size() uint64 {
	return r.size
}

// ReadMetadata verifies header and metadata and returns the metadata.
// Header checksum is verified before anything else stored in the header is trusted.
// Subsequent calls return the same result.
func (r *Reader) ReadMetadata() (format.Metadata, error) {
	switch {
	case r.closed:
		return format.Metadata{}, errors.Wrap(ErrLogic, "reader is closed")
	case r.metadata != nil:
		return *r.metadata, nil
	case r.metadataErr != nil:
		return format.Metadata{}, r.metadataErr
	}

	metadata, err := r.readMetadata()
	if err != nil {
		r.metadataErr = err
		return format.Metadata{}, err
	}
	r.metadata = &metadata
	return metadata, nil
}

// Input returns the stream of payload bytes. Stream ends with io.EOF at the end of the file.
func (r *Reader) Input() io.Reader {
	return payloadReader{r: r}
}

// Close closes the file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var released bool
	err := r.class.Do(context.WithoutCancel(r.ctx), func() error {
		released = true
		return errors.WithStack(r.file.Close())
	})
	if !released {
		_ = r.file.Close()
	}
	return err
}

func (r *Reader) readMetadata() (format.Metadata, error) {
	var headerBuf [format.HeaderSize]byte
	if _, err := io.ReadFull(r.buf, headerBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return format.Metadata{}, errors.Wrapf(ErrTruncatedHeader, "file %s", r.path)
		}
		return format.Metadata{}, err
	}

	header, err := format.DecodeHeader(headerBuf[:])
	if err != nil {
		return format.Metadata{}, errors.Wrapf(err, "file %s", r.path)
	}

	metadataBuf := make([]byte, header.MetadataSize)
	if _, err := io.ReadFull(r.buf, metadataBuf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return format.Metadata{}, errors.Wrapf(ErrTruncatedMetadata, "file %s", r.path)
		}
		return format.Metadata{}, err
	}

	metadata, err := format.DecodeMetadata(header, metadataBuf)
	if err != nil {
		return format.Metadata{}, errors.Wrapf(err, "file %s", r.path)
	}
	return metadata, nil
}

type payloadReader struct {
	r *Reader
}

func (pr payloadReader) Read(p []byte) (int, error) {
	switch {
	case pr.r.closed:
		return 0, errors.Wrap(ErrLogic, "reader is closed")
	case pr.r.metadata == nil:
		return 0, errors.Wrap(ErrLogic, "metadata must be read before payload")
	}
	return pr.r.buf.Read(p)
}

type fileReader struct {
	r *Reader
}

// Read returns bare io.EOF, as required by bufio and io.ReadFull.
func (fr fileReader) Read(p []byte) (int, error) {
	var n int
	var eof bool
	err := fr.r.class.Do(fr.r.ctx, func() error {
		var err error
		n, err = fr.r.file.Read(p)
		if errors.Is(err, io.EOF) {
			eof = true
			return nil
		}
		return errors.WithStack(err)
	})
	if eof {
		return n, io.EOF
	}
	return n, err
}
