package video

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeJPEG builds a minimal SOI + payload + EOI byte sequence.
func fakeJPEG(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	frame = append(frame, 0xFF, 0xD9)
	return frame
}

func writeStream(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lane.mjpeg")
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write stream: %v", err)
	}
	return path
}

func TestFileSourceReadsFrames(t *testing.T) {
	f1 := fakeJPEG(0x01, 0x02)
	f2 := fakeJPEG(0x03)
	src, err := OpenFile(writeStream(t, f1, f2))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer src.Close()

	got, err := src.Next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !bytes.Equal(got, f1) {
		t.Errorf("first frame = %x, want %x", got, f1)
	}

	got, err = src.Next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !bytes.Equal(got, f2) {
		t.Errorf("second frame = %x, want %x", got, f2)
	}
}

func TestFileSourceLoops(t *testing.T) {
	f1 := fakeJPEG(0xAA)
	src, err := OpenFile(writeStream(t, f1))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(); err != nil {
		t.Fatalf("first read: %v", err)
	}

	// stream exhausted: end-of-stream, then the same frame again
	if _, err := src.Next(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream at wrap, got %v", err)
	}
	got, err := src.Next()
	if err != nil {
		t.Fatalf("read after rewind: %v", err)
	}
	if !bytes.Equal(got, f1) {
		t.Errorf("frame after rewind = %x, want %x", got, f1)
	}
}

func TestFileSourceSkipsGarbageBetweenFrames(t *testing.T) {
	f1 := fakeJPEG(0x10)
	stream := append([]byte{0x00, 0x42, 0xFF, 0x00}, f1...)
	src, err := OpenFile(writeStream(t, stream))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer src.Close()

	got, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(got, f1) {
		t.Errorf("frame = %x, want %x", got, f1)
	}
}

func TestFileSourceTruncatedFrame(t *testing.T) {
	// SOI with no terminating EOI
	src, err := OpenFile(writeStream(t, []byte{0xFF, 0xD8, 0x01, 0x02}))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(); err == nil || errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected decode error for truncated frame, got %v", err)
	}
}

func TestOpenFileFailures(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.mjpeg")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.mjpeg")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(empty); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestFileSourceCloseIdempotent(t *testing.T) {
	src, err := OpenFile(writeStream(t, fakeJPEG(0x01)))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestLoopSource(t *testing.T) {
	src := NewLoopSource([]byte("a"), []byte("b"))

	for round := 0; round < 2; round++ {
		got, err := src.Next()
		if err != nil || string(got) != "a" {
			t.Fatalf("round %d first frame = %q, %v", round, got, err)
		}
		got, err = src.Next()
		if err != nil || string(got) != "b" {
			t.Fatalf("round %d second frame = %q, %v", round, got, err)
		}
		if _, err := src.Next(); !errors.Is(err, ErrEndOfStream) {
			t.Fatalf("round %d expected wrap, got %v", round, err)
		}
	}
}

func TestLoopSourceInjectedError(t *testing.T) {
	src := NewLoopSource([]byte("a"))
	boom := errors.New("decode failed")
	src.FailAt(1, boom)

	if _, err := src.Next(); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := src.Next(); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if src.Reads() != 2 {
		t.Errorf("Reads() = %d, want 2", src.Reads())
	}
}
