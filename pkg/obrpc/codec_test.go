package obrpc

import (
	"bytes"
	"testing"
)

func TestCodecForNoneReturnsNilCodec(t *testing.T) {
	c, err := CodecFor(CompressionNone)
	if err != nil {
		t.Fatalf("CodecFor(None): %v", err)
	}
	if c != nil {
		t.Error("CodecFor(None) returned a non-nil codec")
	}
}

func TestCodecForUnknownTypeErrors(t *testing.T) {
	if _, err := CodecFor(CompressionType(99)); err == nil {
		t.Fatal("CodecFor(99) succeeded, want error")
	}
}

func TestCompressionCodecsRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("obkv table client payload round trip test data "), 64)

	for _, ct := range []CompressionType{CompressionSnappy, CompressionS2, CompressionLZ4, CompressionZstd} {
		ct := ct
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := CodecFor(ct)
			if err != nil {
				t.Fatalf("CodecFor(%v): %v", ct, err)
			}
			if codec.Type() != ct {
				t.Errorf("Type() = %v, want %v", codec.Type(), ct)
			}

			var buf bytes.Buffer
			if err := codec.Compress(&buf, payload); err != nil {
				t.Fatalf("Compress: %v", err)
			}

			got, err := codec.Decompress(buf.Bytes())
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(payload))
			}
		})
	}
}
