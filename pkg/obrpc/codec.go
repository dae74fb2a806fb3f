package obrpc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects which block codec compresses a request body
// before it is handed to the (out-of-scope) wire codec. OBKV's RPC
// layer, like Kafka's, negotiates one of several interchangeable block
// codecs per connection.
type CompressionType int8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionS2
	CompressionLZ4
	CompressionZstd
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// CompressionCodec compresses and decompresses request/response bodies
// for large batch or query payloads.
type CompressionCodec interface {
	Type() CompressionType
	Compress(dst io.Writer, src []byte) error
	Decompress(src []byte) ([]byte, error)
}

type snappyCodec struct{}

func (snappyCodec) Type() CompressionType { return CompressionSnappy }
func (snappyCodec) Compress(dst io.Writer, src []byte) error {
	_, err := dst.Write(snappy.Encode(nil, src))
	return err
}
func (snappyCodec) Decompress(src []byte) ([]byte, error) { return snappy.Decode(nil, src) }

type s2Codec struct{}

func (s2Codec) Type() CompressionType { return CompressionS2 }
func (s2Codec) Compress(dst io.Writer, src []byte) error {
	w := s2.NewWriter(dst)
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}
func (s2Codec) Decompress(src []byte) ([]byte, error) {
	r := s2.NewReader(bytes.NewReader(src))
	return io.ReadAll(r)
}

type lz4Codec struct{}

func (lz4Codec) Type() CompressionType { return CompressionLZ4 }
func (lz4Codec) Compress(dst io.Writer, src []byte) error {
	w := lz4.NewWriter(dst)
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}
func (lz4Codec) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	return io.ReadAll(r)
}

type zstdCodec struct{}

func (zstdCodec) Type() CompressionType { return CompressionZstd }
func (zstdCodec) Compress(dst io.Writer, src []byte) error {
	w, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
func (zstdCodec) Decompress(src []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var codecs = map[CompressionType]CompressionCodec{
	CompressionSnappy: snappyCodec{},
	CompressionS2:     s2Codec{},
	CompressionLZ4:    lz4Codec{},
	CompressionZstd:   zstdCodec{},
}

// CodecFor looks up the registered codec for t. Switching codecs is a
// configuration change, not a code change: every codec is registered in
// this one table.
func CodecFor(t CompressionType) (CompressionCodec, error) {
	if t == CompressionNone {
		return nil, nil
	}
	c, ok := codecs[t]
	if !ok {
		return nil, fmt.Errorf("obrpc: unknown compression type %s", t)
	}
	return c, nil
}
