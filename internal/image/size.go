package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	xzHeaderSize = 12
	xzFooterSize = 12
	maxUint32    = 1 << 32
)

var (
	xzHeaderMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	xzFooterMagic = []byte{'Y', 'Z'}
	gzipMagic     = []byte{0x1f, 0x8b}

	errXZFormat = errors.New("malformed xz container")
)

// xzUncompressedSize sums the uncompressed sizes recorded in the index of
// every stream in the file, walking backwards from the last stream footer.
// Stream padding between and after streams is skipped.
func xzUncompressedSize(r io.ReaderAt, size int64) (int64, error) {
	var total int64
	pos := size

	for pos > 0 {
		var err error
		if pos, err = skipXZPadding(r, pos); err != nil {
			return 0, err
		}
		if pos == 0 {
			break
		}
		if pos < xzHeaderSize+xzFooterSize {
			return 0, errXZFormat
		}

		footer := make([]byte, xzFooterSize)
		if _, err := r.ReadAt(footer, pos-xzFooterSize); err != nil {
			return 0, fmt.Errorf("failed to read xz footer: %w", err)
		}
		if !bytes.Equal(footer[10:], xzFooterMagic) {
			return 0, fmt.Errorf("%w: bad footer magic", errXZFormat)
		}
		if crc32.ChecksumIEEE(footer[4:10]) != binary.LittleEndian.Uint32(footer[:4]) {
			return 0, fmt.Errorf("%w: footer checksum", errXZFormat)
		}
		indexSize := (int64(binary.LittleEndian.Uint32(footer[4:8])) + 1) * 4

		indexStart := pos - xzFooterSize - indexSize
		if indexStart < xzHeaderSize {
			return 0, fmt.Errorf("%w: index out of range", errXZFormat)
		}
		index := make([]byte, indexSize)
		if _, err := r.ReadAt(index, indexStart); err != nil {
			return 0, fmt.Errorf("failed to read xz index: %w", err)
		}

		uncompressed, blocks, err := parseXZIndex(index)
		if err != nil {
			return 0, err
		}

		streamStart := indexStart - blocks - xzHeaderSize
		if streamStart < 0 {
			return 0, fmt.Errorf("%w: blocks out of range", errXZFormat)
		}
		header := make([]byte, len(xzHeaderMagic))
		if _, err := r.ReadAt(header, streamStart); err != nil {
			return 0, fmt.Errorf("failed to read xz header: %w", err)
		}
		if !bytes.Equal(header, xzHeaderMagic) {
			return 0, fmt.Errorf("%w: bad header magic", errXZFormat)
		}

		total += uncompressed
		pos = streamStart
	}
	return total, nil
}

// skipXZPadding moves pos backwards over 4-byte groups of zero padding.
func skipXZPadding(r io.ReaderAt, pos int64) (int64, error) {
	word := make([]byte, 4)
	for pos >= 4 {
		if _, err := r.ReadAt(word, pos-4); err != nil {
			return 0, fmt.Errorf("failed to read xz padding: %w", err)
		}
		if binary.LittleEndian.Uint32(word) != 0 {
			break
		}
		pos -= 4
	}
	if pos%4 != 0 {
		return 0, fmt.Errorf("%w: misaligned stream", errXZFormat)
	}
	return pos, nil
}

// parseXZIndex returns the sum of uncompressed sizes and the total padded
// size of all blocks described by an index field.
func parseXZIndex(index []byte) (uncompressed, blocks int64, err error) {
	if len(index) < 8 || index[0] != 0x00 {
		return 0, 0, fmt.Errorf("%w: bad index indicator", errXZFormat)
	}
	body := index[:len(index)-4]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(index[len(index)-4:]) {
		return 0, 0, fmt.Errorf("%w: index checksum", errXZFormat)
	}

	p := body[1:]
	next := func() (uint64, error) {
		v, n := binary.Uvarint(p)
		if n <= 0 || n > 9 {
			return 0, fmt.Errorf("%w: bad index varint", errXZFormat)
		}
		p = p[n:]
		return v, nil
	}

	records, err := next()
	if err != nil {
		return 0, 0, err
	}
	for range records {
		unpadded, err := next()
		if err != nil {
			return 0, 0, err
		}
		size, err := next()
		if err != nil {
			return 0, 0, err
		}
		blocks += int64((unpadded + 3) &^ 3)
		uncompressed += int64(size)
	}
	for _, b := range p {
		if b != 0 {
			return 0, 0, fmt.Errorf("%w: index padding", errXZFormat)
		}
	}
	return uncompressed, blocks, nil
}

// gzipSize reads the ISIZE trailer, the uncompressed length modulo 2^32.
// Well-compressed streams can wrap any number of times without a trace, so
// the result is never exact. An ISIZE below the compressed size has clearly
// wrapped and is rounded up by multiples of 2^32.
func gzipSize(r io.ReaderAt, size int64) (int64, bool, error) {
	if size < 18 {
		return 0, false, errors.New("gzip file too short")
	}
	head := make([]byte, 2)
	if _, err := r.ReadAt(head, 0); err != nil {
		return 0, false, fmt.Errorf("failed to read gzip header: %w", err)
	}
	if !bytes.Equal(head, gzipMagic) {
		return 0, false, errors.New("missing gzip magic")
	}

	trailer := make([]byte, 4)
	if _, err := r.ReadAt(trailer, size-4); err != nil {
		return 0, false, fmt.Errorf("failed to read gzip trailer: %w", err)
	}
	isize := int64(binary.LittleEndian.Uint32(trailer))
	for isize < size {
		isize += maxUint32
	}
	return isize, false, nil
}

// zstdSize returns the frame content size from the first frame header, when
// the encoder recorded one.
func zstdSize(r io.ReaderAt) (int64, bool, error) {
	buf := make([]byte, 64)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, false, fmt.Errorf("failed to read zstd header: %w", err)
	}

	var h zstd.Header
	if err := h.Decode(buf[:n]); err != nil {
		return 0, false, fmt.Errorf("failed to decode zstd header: %w", err)
	}
	if !h.HasFCS || h.Skippable {
		return 0, false, nil
	}
	return int64(h.FrameContentSize), true, nil
}
