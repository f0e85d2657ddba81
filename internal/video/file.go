package video

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// JPEG stream markers.
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FileSource reads frames from an MJPEG stream file: a concatenation of
// JPEG images. Next scans for the next SOI..EOI span. On EOF the file
// is rewound so the stream loops forever.
type FileSource struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	r      *bufio.Reader
	closed bool
}

// OpenFile opens an MJPEG stream file. It fails if the file is missing
// or empty so a misconfigured lane is caught at startup rather than
// spinning on an unreadable source.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video source: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat video source: %w", err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("video source %s is empty", path)
	}
	return &FileSource{path: path, f: f, r: bufio.NewReader(f)}, nil
}

// Next returns the next JPEG frame in the stream, or ErrEndOfStream
// once the file is exhausted. The caller rewinds by calling Next again.
func (s *FileSource) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEndOfStream
	}

	frame, err := readJPEG(s.r)
	if err == io.EOF {
		if _, serr := s.f.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind video source: %w", serr)
		}
		s.r.Reset(s.f)
		return nil, ErrEndOfStream
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Close releases the file. Idempotent.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

// readJPEG scans r for the next SOI marker and accumulates bytes
// through the matching EOI. Garbage between frames is skipped.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	// find SOI
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != jpegSOI[0] {
			continue
		}
		nxt, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		if nxt[0] == jpegSOI[1] {
			r.ReadByte()
			break
		}
	}

	buf := bytes.NewBuffer(append([]byte(nil), jpegSOI...))
	// accumulate through EOI
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("truncated frame at end of stream")
			}
			return nil, err
		}
		buf.WriteByte(b)
		if b == jpegEOI[0] {
			nxt, err := r.Peek(1)
			if err == io.EOF {
				// 0xFF as final byte with nothing after it
				return nil, fmt.Errorf("truncated frame at end of stream")
			}
			if err != nil {
				return nil, err
			}
			if nxt[0] == jpegEOI[1] {
				r.ReadByte()
				buf.WriteByte(jpegEOI[1])
				return buf.Bytes(), nil
			}
		}
	}
}
