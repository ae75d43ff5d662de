package build

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

const (
	// DefaultLogLevel is the level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultMaxLogFiles is the number of rotated log files kept.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the log file size, in MB, that triggers
	// rotation.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the log file name inside LogConfig.Dir.
	DefaultLogFilename = "learnhubd.log"
)

// LogConfig controls where and how verbosely the daemon logs.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, critical or off.
	Level string `mapstructure:"level"`

	// Dir, when set, enables a rotating log file in that directory in
	// addition to the console.
	Dir string `mapstructure:"dir"`

	// MaxFiles is the number of rotated files kept.
	MaxFiles int `mapstructure:"max_files"`

	// MaxFileSizeMB is the size at which the log file is rotated.
	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`

	// Filename overrides DefaultLogFilename.
	Filename string `mapstructure:"filename"`
}

// DefaultLogConfig returns console-only logging at the info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:         DefaultLogLevel,
		MaxFiles:      DefaultMaxLogFiles,
		MaxFileSizeMB: DefaultMaxLogFileSize,
		Filename:      DefaultLogFilename,
	}
}

// NewLogger builds a slog.Logger that writes to console and, when cfg.Dir
// is set, to a rotating file. The returned close func flushes the file and
// must be called on shutdown.
func NewLogger(cfg LogConfig, console io.Writer) (*slog.Logger,
	func() error, error) {

	level, ok := btclog.LevelFromString(strings.ToLower(cfg.Level))
	if !ok {
		return nil, nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	sinks := []btclogv2.Handler{btclogv2.NewDefaultHandler(console)}
	closeFn := func() error { return nil }

	if cfg.Dir != "" {
		file, err := openLogFile(cfg)
		if err != nil {
			return nil, nil, err
		}

		sinks = append(sinks, btclogv2.NewDefaultHandler(file))
		closeFn = file.Close
	}

	return slog.New(newFanout(level, sinks...)), closeFn, nil
}
