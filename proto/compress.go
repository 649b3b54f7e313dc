package proto

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// CompressorName is the gRPC compressor clients may use for large responses (event logs).
const CompressorName = "zstd"

type zstdCompressor struct{}

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return encoder, nil
}

func (zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &zstdReader{decoder}, nil
}

func (zstdCompressor) Name() string {
	return CompressorName
}

// zstdReader releases the decoder once the message has been fully read.
type zstdReader struct {
	*zstd.Decoder
}

func (r *zstdReader) Read(p []byte) (int, error) {
	n, err := r.Decoder.Read(p)
	if err == io.EOF {
		r.Decoder.Close()
	}
	return n, err
}

func init() {
	encoding.RegisterCompressor(zstdCompressor{})
}
