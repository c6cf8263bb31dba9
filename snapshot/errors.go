package snapshot

import (
	"github.com/pkg/errors"

	"github.com/outofforest/raftsnap/snapshot/format"
)

var (
	// ErrTruncatedHeader is returned if snapshot file is shorter than the header.
	ErrTruncatedHeader = errors.New("snapshot file does not contain full header")

	// ErrTruncatedMetadata is returned if snapshot file ends before the metadata declared by the header.
	ErrTruncatedMetadata = errors.New("snapshot file does not contain full metadata")

	// ErrHeaderCRC is returned if header of the snapshot file is corrupted.
	ErrHeaderCRC = format.ErrHeaderCRC

	// ErrMetadataCRC is returned if metadata of the snapshot file is corrupted.
	ErrMetadataCRC = format.ErrMetadataCRC

	// ErrUnsupportedVersion is returned if snapshot file was written using unknown format.
	ErrUnsupportedVersion = format.ErrUnsupportedVersion

	// ErrInvalidMetadata is returned if metadata passed checksum verification but can't be decoded.
	ErrInvalidMetadata = format.ErrInvalidMetadata

	// ErrLogic is returned if writer or reader are used in wrong order.
	ErrLogic = errors.New("snapshot API used incorrectly")
)
