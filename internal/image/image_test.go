package image

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const mib = 1 << 20

// payload returns n bytes that compress well but are not all zeros.
func payload(n int) []byte {
	r := rand.New(rand.NewPCG(1, 2))
	b := make([]byte, n)
	for i := 0; i < n; i += 512 {
		b[i] = byte(r.IntN(256))
	}
	return b
}

// noise returns n incompressible bytes.
func noise(n int) []byte {
	r := rand.New(rand.NewPCG(3, 4))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

type xzRecord struct {
	unpadded, uncompressed uint64
}

// xzContainer builds a structurally valid xz stream whose blocks are filler
// bytes. Only the container metadata is meaningful.
func xzContainer(records ...xzRecord) []byte {
	var out []byte

	flags := []byte{0x00, 0x01}
	out = append(out, 0xfd, '7', 'z', 'X', 'Z', 0x00)
	out = append(out, flags...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(flags))

	for _, r := range records {
		out = append(out, make([]byte, (r.unpadded+3)&^3)...)
	}

	index := []byte{0x00}
	index = binary.AppendUvarint(index, uint64(len(records)))
	for _, r := range records {
		index = binary.AppendUvarint(index, r.unpadded)
		index = binary.AppendUvarint(index, r.uncompressed)
	}
	for len(index)%4 != 0 {
		index = append(index, 0)
	}
	index = binary.LittleEndian.AppendUint32(index, crc32.ChecksumIEEE(index))
	out = append(out, index...)

	backward := binary.LittleEndian.AppendUint32(nil, uint32(len(index)/4-1))
	backward = append(backward, flags...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(backward))
	out = append(out, backward...)
	return append(out, 'Y', 'Z')
}

func newTestInspector(t *testing.T, files map[string][]byte) *Inspector {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
	}
	return NewInspector(fs, DefaultCodecTable())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	raw := noise(2 * mib)
	corrupt := gzipBytes(t, raw)
	corrupt[len(corrupt)/2] ^= 0xff
	corrupt[len(corrupt)/2+1] ^= 0xff
	bz := append([]byte("BZh91AY&SY"), make([]byte, 2*mib)...)

	inspector := newTestInspector(t, map[string][]byte{
		"/img/empty.img":    {},
		"/img/short.img":    make([]byte, mib-1),
		"/img/exact.img":    make([]byte, mib),
		"/img/good.img.gz":  gzipBytes(t, raw),
		"/img/good.img.xz":  xzBytes(t, raw),
		"/img/good.img.zst": zstdBytes(t, raw),
		"/img/bad.img.gz":   corrupt,
		"/img/bad.img.bz2":  bz,
		"/img/trunc.img.xz": xzBytes(t, raw)[:mib+4096],
	})

	cases := []struct {
		path string
		want error
	}{
		{path: "/img/missing.img", want: burnerr.ErrImageNotFound},
		{path: "/img", want: burnerr.ErrImageNotFound},
		{path: "/img/empty.img", want: burnerr.ErrImageEmpty},
		{path: "/img/short.img", want: burnerr.ErrImageTooSmall},
		{path: "/img/exact.img"},
		{path: "/img/good.img.gz"},
		{path: "/img/good.img.xz"},
		{path: "/img/good.img.zst"},
		{path: "/img/bad.img.gz", want: burnerr.ErrImageCorrupt},
		{path: "/img/bad.img.bz2", want: burnerr.ErrImageCorrupt},
		{path: "/img/trunc.img.xz", want: burnerr.ErrImageCorrupt},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()

			err := inspector.Validate(context.Background(), tc.path)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestValidateCompressedImagesMeetMinimumSize(t *testing.T) {
	t.Parallel()

	// Small compressed files are rejected on their file size, before decoding.
	inspector := newTestInspector(t, map[string][]byte{
		"/tiny.img.gz": gzipBytes(t, payload(2*mib)),
	})

	err := inspector.Validate(context.Background(), "/tiny.img.gz")
	assert.ErrorIs(t, err, burnerr.ErrImageTooSmall)
}

func TestDecompressedSizeXZIndex(t *testing.T) {
	t.Parallel()

	container := xzContainer(xzRecord{unpadded: 3*mib + 1, uncompressed: 256 * mib})
	inspector := newTestInspector(t, map[string][]byte{"/openwrt.img.xz": container})

	size, exact, err := inspector.DecompressedSize("/openwrt.img.xz")

	require.NoError(t, err)
	assert.Equal(t, int64(256*mib), size)
	assert.True(t, exact)
	assert.Equal(t, CodecXZ, inspector.CodecOf("/openwrt.img.xz"))
}

func TestDecompressedSizeXZMultiStream(t *testing.T) {
	t.Parallel()

	var data []byte
	data = append(data, xzContainer(
		xzRecord{unpadded: 1000, uncompressed: 64 * mib},
		xzRecord{unpadded: 2001, uncompressed: 32 * mib},
	)...)
	data = append(data, 0, 0, 0, 0)
	data = append(data, xzContainer(xzRecord{unpadded: 17, uncompressed: 7})...)
	data = append(data, 0, 0, 0, 0, 0, 0, 0, 0)

	inspector := newTestInspector(t, map[string][]byte{"/multi.img.xz": data})

	size, exact, err := inspector.DecompressedSize("/multi.img.xz")

	require.NoError(t, err)
	assert.Equal(t, int64(96*mib+7), size)
	assert.True(t, exact)
}

func TestDecompressedSizeXZBrokenIndex(t *testing.T) {
	t.Parallel()

	data := xzContainer(xzRecord{unpadded: 100, uncompressed: mib})
	data[len(data)-20] ^= 0xff
	inspector := newTestInspector(t, map[string][]byte{"/broken.img.xz": data})

	_, _, err := inspector.DecompressedSize("/broken.img.xz")

	assert.ErrorIs(t, err, burnerr.ErrImageCorrupt)
}

func TestDecompressedSize(t *testing.T) {
	t.Parallel()

	raw := payload(3 * mib)
	inspector := newTestInspector(t, map[string][]byte{
		"/a.img":     raw,
		"/a.img.gz":  gzipBytes(t, raw),
		"/a.img.xz":  xzBytes(t, raw),
		"/a.img.zst": zstdBytes(t, raw),
		"/a.img.bz2": bytes.Repeat([]byte{1}, 4096),
	})

	cases := []struct {
		path  string
		size  int64
		exact bool
	}{
		{path: "/a.img", size: 3 * mib, exact: true},
		{path: "/a.img.gz", size: 3 * mib, exact: false},
		{path: "/a.img.xz", size: 3 * mib, exact: true},
		{path: "/a.img.zst", size: 3 * mib, exact: true},
		{path: "/a.img.bz2", size: 4096, exact: false},
	}

	for _, tc := range cases {
		size, exact, err := inspector.DecompressedSize(tc.path)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.size, size, tc.path)
		assert.Equal(t, tc.exact, exact, tc.path)
	}
}

func TestGzipSizeWrapped(t *testing.T) {
	t.Parallel()

	// A 5 GiB image that compressed to 4.5 GiB: ISIZE holds 1 GiB.
	const compressed = int64(4*1024+512) * mib
	trailer := binary.LittleEndian.AppendUint32(nil, 1<<30)
	r := fakeReaderAt{size: compressed, head: []byte{0x1f, 0x8b}, tail: trailer}

	size, exact, err := gzipSize(r, compressed)

	require.NoError(t, err)
	assert.False(t, exact)
	assert.Equal(t, int64(5<<30), size)
}

func TestGzipSizeImplausible(t *testing.T) {
	t.Parallel()

	trailer := binary.LittleEndian.AppendUint32(nil, 10)
	r := fakeReaderAt{size: 20 * mib, head: []byte{0x1f, 0x8b}, tail: trailer}

	size, exact, err := gzipSize(r, 20*mib)

	require.NoError(t, err)
	assert.False(t, exact)
	assert.Equal(t, int64(1<<32+10), size)
}

func TestGzipSizeCompressibleIsEstimate(t *testing.T) {
	t.Parallel()

	// 4 GiB + 16 MiB of zeros squeezed into 4 MiB: ISIZE reads 16 MiB and
	// nothing in the container shows it wrapped.
	trailer := binary.LittleEndian.AppendUint32(nil, 16*mib)
	r := fakeReaderAt{size: 4 * mib, head: []byte{0x1f, 0x8b}, tail: trailer}

	size, exact, err := gzipSize(r, 4*mib)

	require.NoError(t, err)
	assert.False(t, exact)
	assert.Equal(t, int64(16*mib), size)
}

func TestInspectCountsGzipStream(t *testing.T) {
	t.Parallel()

	raw := noise(2*mib + 777)
	inspector := newTestInspector(t, map[string][]byte{"/sd.img.gz": gzipBytes(t, raw)})

	_, exact, err := inspector.DecompressedSize("/sd.img.gz")
	require.NoError(t, err)
	require.False(t, exact)

	info, err := inspector.Inspect(context.Background(), "/sd.img.gz")

	require.NoError(t, err)
	assert.True(t, info.SizeExact)
	assert.Equal(t, int64(len(raw)), info.DecompressedSize)
}

// fakeReaderAt serves a large sparse file with fixed head and tail bytes.
type fakeReaderAt struct {
	head, tail []byte
	size       int64
}

func (f fakeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	for i := range p {
		pos := off + int64(i)
		switch {
		case pos >= f.size:
			return i, io.EOF
		case pos < int64(len(f.head)):
			p[i] = f.head[pos]
		case pos >= f.size-int64(len(f.tail)):
			p[i] = f.tail[pos-(f.size-int64(len(f.tail)))]
		default:
			p[i] = 0
		}
	}
	return len(p), nil
}

func TestInspect(t *testing.T) {
	t.Parallel()

	raw := noise(2 * mib)
	inspector := newTestInspector(t, map[string][]byte{"/build/sd.img.xz": xzBytes(t, raw)})

	info, err := inspector.Inspect(context.Background(), "/build/sd.img.xz")

	require.NoError(t, err)
	assert.Equal(t, "/build/sd.img.xz", info.Path)
	assert.Equal(t, CodecXZ, info.Codec)
	assert.Equal(t, int64(2*mib), info.DecompressedSize)
	assert.True(t, info.SizeExact)
	assert.True(t, info.Valid)
	assert.False(t, info.Created.IsZero())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	raw := payload(2 * mib)
	inspector := newTestInspector(t, map[string][]byte{
		"/x.img.gz":  gzipBytes(t, raw),
		"/x.img.xz":  xzBytes(t, raw),
		"/x.img.zst": zstdBytes(t, raw),
		"/x.img":     raw,
	})

	for _, path := range []string{"/x.img.gz", "/x.img.xz", "/x.img.zst", "/x.img"} {
		rc, err := inspector.Open(context.Background(), path)
		require.NoError(t, err, path)

		got, err := io.ReadAll(rc)
		require.NoError(t, err, path)
		require.NoError(t, rc.Close(), path)
		assert.True(t, bytes.Equal(raw, got), "%s decoded to different bytes", path)
	}
}

func TestOpenCancelled(t *testing.T) {
	t.Parallel()

	inspector := newTestInspector(t, map[string][]byte{"/x.img": payload(2 * mib)})
	ctx, cancel := context.WithCancel(context.Background())

	rc, err := inspector.Open(ctx, "/x.img")
	require.NoError(t, err)
	defer rc.Close()

	cancel()
	_, err = rc.Read(make([]byte, 16))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountDecompressed(t *testing.T) {
	t.Parallel()

	raw := payload(3*mib + 17)
	inspector := newTestInspector(t, map[string][]byte{
		"/x.img.gz": gzipBytes(t, raw),
		"/bad.img.gz": func() []byte {
			b := gzipBytes(t, raw)
			return b[:len(b)/2]
		}(),
	})

	n, err := inspector.CountDecompressed(context.Background(), "/x.img.gz")
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), n)

	_, err = inspector.CountDecompressed(context.Background(), "/bad.img.gz")
	assert.ErrorIs(t, err, burnerr.ErrImageCorrupt)

	_, err = inspector.CountDecompressed(context.Background(), "/missing.img.gz")
	assert.ErrorIs(t, err, burnerr.ErrImageNotFound)
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	raw := payload(3 * mib)
	inspector := newTestInspector(t, map[string][]byte{
		"/a.img.gz": gzipBytes(t, raw),
		"/a.img.xz": xzBytes(t, raw),
	})

	info, err := inspector.Estimate("/a.img.gz")
	require.NoError(t, err)
	assert.Equal(t, CodecGzip, info.Codec)
	assert.Equal(t, int64(len(raw)), info.DecompressedSize)
	assert.False(t, info.SizeExact)
	assert.False(t, info.Valid)

	info, err = inspector.Estimate("/a.img.xz")
	require.NoError(t, err)
	assert.True(t, info.SizeExact)

	_, err = inspector.Estimate("/none.img.gz")
	assert.ErrorIs(t, err, burnerr.ErrImageNotFound)
}
