package logfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Open creates (or appends to) the log file at path and returns a JSON
// logger writing to it. The caller closes the returned closer on exit.
func Open(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(handler), file, nil
}

const tailChunk = 32 * 1024

// Tail returns at most maxLines from the end of the file at path, reading
// backwards so large logs are not scanned in full. A non-positive maxLines
// returns every line. A missing file has no lines.
func Tail(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	var buf []byte
	for off := info.Size(); off > 0; {
		n := min(int64(tailChunk), off)
		off -= n
		chunk := make([]byte, n)
		if _, err := file.ReadAt(chunk, off); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log: %w", err)
		}
		buf = append(chunk, buf...)
		if maxLines > 0 && bytes.Count(buf, []byte{'\n'}) > maxLines {
			break
		}
	}

	text := strings.TrimRight(string(buf), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// Record is one parsed log line.
type Record struct {
	Time    time.Time
	Level   string
	Message string
	Attrs   map[string]string
}

// Parse decodes a JSON log line written by Open.
func Parse(line string) Record {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{Message: line}
	}
	rec := Record{Attrs: make(map[string]string)}
	for k, v := range raw {
		switch k {
		case slog.TimeKey:
			if s, ok := v.(string); ok {
				rec.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case slog.LevelKey:
			rec.Level = fmt.Sprint(v)
		case slog.MessageKey:
			rec.Message = fmt.Sprint(v)
		default:
			rec.Attrs[k] = fmt.Sprint(v)
		}
	}
	return rec
}

// Format renders r as "15:04:05 LEVEL message key=value ..." with keys in
// sorted order.
func (r Record) Format() string {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if r.Level != "" {
		b.WriteString(r.Level)
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)
	for _, k := range slices.Sorted(maps.Keys(r.Attrs)) {
		fmt.Fprintf(&b, " %s=%s", k, r.Attrs[k])
	}
	return b.String()
}
