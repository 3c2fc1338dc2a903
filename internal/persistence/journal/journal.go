// Package journal records and reads the per-tick frame log. One JSON frame
// per line, zstd-compressed when the path carries a .zst suffix. The file
// is flushed after every frame so a crash loses at most the tick in flight.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/uruley/Nexus/internal/sim/world"
)

// Writer appends frames to a journal file. Implements world.FrameLogger.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewWriter opens path for appending, creating parent directories. Appending
// to an existing .zst journal starts a new zstd stream; the reader handles
// concatenated streams.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	jw := &Writer{f: f}
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		jw.enc = enc
		jw.w = bufio.NewWriterSize(enc, 128*1024)
	} else {
		jw.w = bufio.NewWriterSize(f, 128*1024)
	}
	return jw, nil
}

func (jw *Writer) WriteFrame(frame world.Frame) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := jw.w.Write(b); err != nil {
		return err
	}
	if err := jw.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := jw.w.Flush(); err != nil {
		return err
	}
	if jw.enc != nil {
		return jw.enc.Flush()
	}
	return nil
}

func (jw *Writer) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	var err error
	if jw.w != nil {
		_ = jw.w.Flush()
		jw.w = nil
	}
	if jw.enc != nil {
		err = jw.enc.Close()
		jw.enc = nil
	}
	if jw.f != nil {
		_ = jw.f.Close()
		jw.f = nil
	}
	return err
}

// CorruptFrameError reports an undecodable journal line. Line numbers are
// 1-based so they match what an editor shows on the decompressed stream.
type CorruptFrameError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptFrameError) Error() string {
	return fmt.Sprintf("journal %s: line %d: %v", filepath.Base(e.Path), e.Line, e.Err)
}

func (e *CorruptFrameError) Unwrap() error { return e.Err }

// Reader streams frames back in file order. Implements world.FrameSource.
type Reader struct {
	path string
	f    *os.File
	dec  *zstd.Decoder
	sc   *bufio.Scanner
	line int
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	jr := &Reader{path: path, f: f}
	var src io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		jr.dec = dec
		src = dec
	}
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	jr.sc = sc
	return jr, nil
}

// Next returns the next frame, io.EOF at the end of the journal, or a
// *CorruptFrameError for a line that does not decode.
func (jr *Reader) Next() (world.Frame, error) {
	for jr.sc.Scan() {
		jr.line++
		line := jr.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame world.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return world.Frame{}, &CorruptFrameError{Path: jr.path, Line: jr.line, Err: err}
		}
		return frame, nil
	}
	if err := jr.sc.Err(); err != nil {
		return world.Frame{}, &CorruptFrameError{Path: jr.path, Line: jr.line + 1, Err: err}
	}
	return world.Frame{}, io.EOF
}

func (jr *Reader) Close() error {
	if jr.dec != nil {
		jr.dec.Close()
		jr.dec = nil
	}
	if jr.f != nil {
		err := jr.f.Close()
		jr.f = nil
		return err
	}
	return nil
}
