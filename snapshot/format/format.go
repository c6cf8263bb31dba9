package format

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/outofforest/raftsnap/types"
	"github.com/outofforest/varuint64"
)

const (
	// Version is the version of the format written by this package.
	Version uint8 = 1

	// HeaderSize is the on-disk size of the header.
	HeaderSize = 13

	// MaxMetadataSize is the upper bound of the metadata section accepted by the decoder.
	MaxMetadataSize = 1024

	headerCRCOffset = 9
)

var (
	// ErrHeaderCRC is returned if header checksum does not match.
	ErrHeaderCRC = errors.New("failed to verify header crc")

	// ErrMetadataCRC is returned if metadata checksum does not match.
	ErrMetadataCRC = errors.New("failed to verify metadata crc")

	// ErrUnsupportedVersion is returned if header declares unknown version of the format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot format version")

	// ErrInvalidMetadata is returned if verified metadata can't be decoded.
	ErrInvalidMetadata = errors.New("invalid snapshot metadata")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the checksum used by the format.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Header is the fixed-size header stored at the beginning of the snapshot file.
//
// Layout (little endian):
//
//	[Version:1][MetadataSize:4][MetadataCRC:4][HeaderCRC:4]
//
// HeaderCRC covers the first 9 bytes.
type Header struct {
	Version      uint8
	MetadataSize uint32
	MetadataCRC  uint32
	HeaderCRC    uint32
}

// Metadata describes the log position covered by the snapshot.
type Metadata struct {
	LastIncludedIndex types.Index
	LastIncludedTerm  types.Term
}

// Size returns the size of marshalled metadata.
func (m Metadata) Size() uint64 {
	return varuint64.Size(uint64(m.LastIncludedIndex)) + varuint64.Size(uint64(m.LastIncludedTerm))
}

// Marshal marshals metadata into the buffer and returns the number of bytes used.
func (m Metadata) Marshal(buf []byte) uint64 {
	n := varuint64.Put(buf, uint64(m.LastIncludedIndex))
	return n + varuint64.Put(buf[n:], uint64(m.LastIncludedTerm))
}

// Encode produces header followed by metadata, ready to be stored at the beginning of the file.
func Encode(metadata Metadata) []byte {
	buf := make([]byte, HeaderSize+metadata.Size())
	n := metadata.Marshal(buf[HeaderSize:])
	metadataBytes := buf[HeaderSize : HeaderSize+n]

	h := Header{
		Version:      Version,
		MetadataSize: uint32(n),
		MetadataCRC:  Checksum(metadataBytes),
	}
	h.marshal(buf[:HeaderSize])

	return buf[:HeaderSize+n]
}

// DecodeHeader verifies the header checksum and version and returns the header.
// Nothing else is interpreted if the checksum does not match.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errors.Errorf("header buffer too short: %d", len(buf))
	}

	h := Header{
		Version:      buf[0],
		MetadataSize: binary.LittleEndian.Uint32(buf[1:]),
		MetadataCRC:  binary.LittleEndian.Uint32(buf[5:]),
		HeaderCRC:    binary.LittleEndian.Uint32(buf[headerCRCOffset:]),
	}
	if Checksum(buf[:headerCRCOffset]) != h.HeaderCRC {
		return Header{}, errors.WithStack(ErrHeaderCRC)
	}
	if h.Version != Version {
		return Header{}, errors.Wrapf(ErrUnsupportedVersion, "version %d", h.Version)
	}
	if h.MetadataSize > MaxMetadataSize {
		return Header{}, errors.Wrapf(ErrInvalidMetadata, "metadata size %d exceeds limit", h.MetadataSize)
	}
	return h, nil
}

// DecodeMetadata verifies metadata against the header and decodes it.
func DecodeMetadata(h Header, buf []byte) (Metadata, error) {
	if uint64(len(buf)) != uint64(h.MetadataSize) {
		return Metadata{}, errors.Errorf("metadata buffer has size %d, expected %d", len(buf), h.MetadataSize)
	}
	if Checksum(buf) != h.MetadataCRC {
		return Metadata{}, errors.WithStack(ErrMetadataCRC)
	}

	index, n, ok := parse(buf)
	if !ok {
		return Metadata{}, errors.Wrap(ErrInvalidMetadata, "last included index")
	}
	buf = buf[n:]

	term, n, ok := parse(buf)
	if !ok {
		return Metadata{}, errors.Wrap(ErrInvalidMetadata, "last included term")
	}
	if uint64(len(buf)) != n {
		return Metadata{}, errors.Wrapf(ErrInvalidMetadata, "%d unexpected trailing bytes", uint64(len(buf))-n)
	}

	return Metadata{
		LastIncludedIndex: types.Index(index),
		LastIncludedTerm:  types.Term(term),
	}, nil
}

func (h Header) marshal(buf []byte) {
	buf[0] = h.Version
	binary.LittleEndian.PutUint32(buf[1:], h.MetadataSize)
	binary.LittleEndian.PutUint32(buf[5:], h.MetadataCRC)
	binary.LittleEndian.PutUint32(buf[headerCRCOffset:], Checksum(buf[:headerCRCOffset]))
}

func parse(buf []byte) (uint64, uint64, bool) {
	if !varuint64.Contains(buf) {
		return 0, 0, false
	}
	v, n := varuint64.Parse(buf)
	return v, n, true
}
