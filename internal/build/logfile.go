package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// logFile is the daemon's rotating log file. Writes go through a pipe to
// the rotator goroutine, which gzips rotated files.
type logFile struct {
	pipe *io.PipeWriter
	done chan struct{}
}

// openLogFile starts a rotator for cfg.Dir/cfg.Filename.
func openLogFile(cfg LogConfig) (*logFile, error) {
	name := cfg.Filename
	if name == "" {
		name = DefaultLogFilename
	}

	path := filepath.Join(cfg.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	// The rotator threshold is in kilobytes.
	rot, err := rotator.New(
		path, int64(cfg.MaxFileSizeMB*1024), false, cfg.MaxFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	f := &logFile{pipe: pw, done: make(chan struct{})}

	go func() {
		defer close(f.done)

		// The log file is the failing sink, so report on stderr.
		if err := rot.Run(pr); err != nil {
			fmt.Fprintf(os.Stderr, "learnhub log rotator: %v\n", err)
		}
	}()

	return f, nil
}

// Write queues b for the rotator.
func (f *logFile) Write(b []byte) (int, error) {
	return f.pipe.Write(b)
}

// Close ends the stream and waits until the rotator has flushed it.
func (f *logFile) Close() error {
	err := f.pipe.Close()
	<-f.done

	return err
}
