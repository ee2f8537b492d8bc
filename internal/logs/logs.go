// Package logs reads and follows daemon debug.log files.
package logs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DebugLogName is the log file bitcoind-lineage daemons write inside
// their data directory.
const DebugLogName = "debug.log"

// LogPath returns the debug.log path for a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, DebugLogName)
}

// timestampRe matches the leading timestamp daemons prefix log lines with.
var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?Z? `)

// CleanLine strips the leading timestamp and surrounding whitespace from
// a raw debug.log line.
func CleanLine(line string) string {
	line = strings.TrimSpace(line)
	return strings.TrimSpace(timestampRe.ReplaceAllString(line, ""))
}

// Tailer reads new lines appended to a debug.log, filtering out noise:
// timestamps are stripped, UpdateTip chatter is dropped, and consecutive
// duplicates are suppressed.
type Tailer struct {
	Path string

	pos  int64
	last string
}

// NewTailer creates a Tailer for the debug.log inside dataDir.
func NewTailer(dataDir string) *Tailer {
	return &Tailer{Path: LogPath(dataDir)}
}

// SkipExisting advances past the current end of the file so that only
// lines written afterwards are returned. A missing file is not an error;
// the daemon simply has not created it yet.
func (t *Tailer) SkipExisting() {
	info, err := os.Stat(t.Path)
	if err != nil {
		t.pos = 0
		return
	}
	t.pos = info.Size()
}

// Next returns the filtered lines appended since the previous call.
func (t *Tailer) Next() ([]string, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", t.Path, err)
	}
	defer f.Close()

	if _, err := f.Seek(t.pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek %s: %w", t.Path, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.Path, err)
	}

	// Leave a trailing partial line for the next call.
	chunks := strings.Split(string(data), "\n")
	partial := chunks[len(chunks)-1]
	t.pos += int64(len(data) - len(partial))

	var lines []string
	for _, raw := range chunks[:len(chunks)-1] {
		line := CleanLine(raw)
		if line == "" || strings.HasPrefix(line, "UpdateTip") {
			continue
		}
		if line == t.last {
			continue
		}
		lines = append(lines, line)
		t.last = line
	}
	return lines, nil
}

// FileSource streams lines from a log file, optionally following appends.
type FileSource struct {
	FilePath  string
	Follow    bool
	LineCount int
	file      *os.File
}

// NewFileSource creates a new file log source.
func NewFileSource(filePath string, follow bool, lineCount int) *FileSource {
	return &FileSource{
		FilePath:  filePath,
		Follow:    follow,
		LineCount: lineCount,
	}
}

// Lines returns a channel of log lines from the file. When LineCount > 0
// the last N existing lines are emitted first; in follow mode the channel
// then streams appended lines until the context is canceled.
func (f *FileSource) Lines(ctx context.Context) (<-chan string, error) {
	file, err := os.Open(f.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	f.file = file

	ch := make(chan string, 100)

	go func() {
		defer close(ch)
		defer file.Close()

		if f.LineCount > 0 {
			for _, line := range readLastNLines(file, f.LineCount) {
				select {
				case ch <- line:
				case <-ctx.Done():
					return
				}
			}
			file.Seek(0, io.SeekEnd)
		}

		if !f.Follow {
			return
		}

		reader := bufio.NewReader(file)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				line, err := reader.ReadString('\n')
				if err != nil {
					if err == io.EOF {
						time.Sleep(100 * time.Millisecond)
						continue
					}
					return
				}
				ch <- strings.TrimSuffix(line, "\n")
			}
		}
	}()

	return ch, nil
}

// Close closes the file.
func (f *FileSource) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// readLastNLines reads the last N lines from a file.
func readLastNLines(file *os.File, n int) []string {
	const bufSize = 1024
	stat, err := file.Stat()
	if err != nil {
		return nil
	}

	size := stat.Size()
	var lines []string
	var leftover string

	for offset := int64(bufSize); offset <= size+bufSize; offset += bufSize {
		readStart := size - offset
		if readStart < 0 {
			readStart = 0
		}

		readSize := offset
		if offset > size {
			readSize = size
		}
		if readStart == 0 {
			readSize = size - (offset - bufSize)
		}

		buf := make([]byte, readSize)
		file.Seek(readStart, io.SeekStart)
		file.Read(buf)

		chunk := string(buf) + leftover
		parts := strings.Split(chunk, "\n")

		if readStart > 0 {
			leftover = parts[0]
			parts = parts[1:]
		} else {
			leftover = ""
		}

		for i := len(parts) - 1; i >= 0; i-- {
			if parts[i] != "" {
				lines = append([]string{parts[i]}, lines...)
			}
		}

		if len(lines) >= n {
			break
		}
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	file.Seek(0, io.SeekStart)
	return lines
}
