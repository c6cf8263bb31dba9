package format

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func craft(version uint8, metadata []byte) []byte {
	buf := make([]byte, HeaderSize+len(metadata))
	Header{
		Version:      version,
		MetadataSize: uint32(len(metadata)),
		MetadataCRC:  Checksum(metadata),
	}.marshal(buf)
	copy(buf[HeaderSize:], metadata)
	return buf
}

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	buf := Encode(Metadata{
		LastIncludedIndex: 9,
		LastIncludedTerm:  33,
	})

	requireT.Len(buf, HeaderSize+2)
	requireT.Equal(Version, buf[0])
	requireT.EqualValues(2, binary.LittleEndian.Uint32(buf[1:]))
	requireT.Equal(Checksum(buf[HeaderSize:]), binary.LittleEndian.Uint32(buf[5:]))
	requireT.Equal(Checksum(buf[:9]), binary.LittleEndian.Uint32(buf[9:]))
	requireT.Equal([]byte{9, 33}, buf[HeaderSize:])
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	for _, m := range []Metadata{
		{},
		{LastIncludedIndex: 9, LastIncludedTerm: 33},
		{LastIncludedIndex: 1 << 40, LastIncludedTerm: 300},
		{LastIncludedIndex: math.MaxUint64, LastIncludedTerm: math.MaxUint64},
	} {
		requireT := require.New(t)

		buf := Encode(m)
		requireT.EqualValues(HeaderSize+m.Size(), len(buf))

		h, err := DecodeHeader(buf[:HeaderSize])
		requireT.NoError(err)
		requireT.EqualValues(m.Size(), h.MetadataSize)

		m2, err := DecodeMetadata(h, buf[HeaderSize:])
		requireT.NoError(err)
		requireT.Equal(m, m2)
	}
}

func TestDecodeHeaderDetectsEveryCorruptedByte(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	buf := Encode(Metadata{LastIncludedIndex: 9, LastIncludedTerm: 33})
	for i := range HeaderSize {
		corrupted := append([]byte{}, buf...)
		corrupted[i] ^= 0xff

		_, err := DecodeHeader(corrupted[:HeaderSize])
		requireT.ErrorIs(err, ErrHeaderCRC, i)
	}
}

func TestDecodeHeaderFailsOnShortBuffer(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	requireT.Error(err)
}

func TestDecodeHeaderVerifiesVersion(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	buf := craft(Version+1, []byte{0x01, 0x02})
	_, err := DecodeHeader(buf[:HeaderSize])
	requireT.ErrorIs(err, ErrUnsupportedVersion)
}

func TestDecodeHeaderRejectsHugeMetadata(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	buf := make([]byte, HeaderSize)
	Header{
		Version:      Version,
		MetadataSize: MaxMetadataSize + 1,
	}.marshal(buf)

	_, err := DecodeHeader(buf)
	requireT.ErrorIs(err, ErrInvalidMetadata)
}

func TestDecodeMetadataDetectsEveryCorruptedByte(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	buf := Encode(Metadata{LastIncludedIndex: 1 << 40, LastIncludedTerm: 300})
	h, err := DecodeHeader(buf[:HeaderSize])
	requireT.NoError(err)

	for i := HeaderSize; i < len(buf); i++ {
		corrupted := append([]byte{}, buf...)
		corrupted[i] ^= 0xff

		_, err := DecodeMetadata(h, corrupted[HeaderSize:])
		requireT.ErrorIs(err, ErrMetadataCRC, i)
	}
}

func TestDecodeMetadataFailsOnWrongSize(t *testing.T) {
	t.Parallel()

	requireT := require.New(t)

	buf := Encode(Metadata{LastIncludedIndex: 9, LastIncludedTerm: 33})
	h, err := DecodeHeader(buf[:HeaderSize])
	requireT.NoError(err)

	_, err = DecodeMetadata(h, buf[HeaderSize:len(buf)-1])
	requireT.Error(err)
}

func TestDecodeMetadataRejectsMalformedContent(t *testing.T) {
	t.Parallel()

	for _, metadata := range [][]byte{
		{},
		{0x01},
		{0x01, 0x80},
		{0x01, 0x02, 0x03},
	} {
		requireT := require.New(t)

		buf := craft(Version, metadata)
		h, err := DecodeHeader(buf[:HeaderSize])
		requireT.NoError(err)

		_, err = DecodeMetadata(h, buf[HeaderSize:])
		requireT.ErrorIs(err, ErrInvalidMetadata, metadata)
	}
}
