package logging

import (
	"io"
	"os"
	"path/filepath"

	"smsrelay/internal/security"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for log_file
const (
	maxLogSizeMB   = 100
	maxLogBackups  = 3
	maxLogAgeDays  = 28
	logDirMode     = 0750
	defaultLogMode = logrus.InfoLevel
)

// Options selects where and how verbosely the relay logs
type Options struct {
	Level   string
	File    string
	Verbose bool
}

// New builds the JSON logger. With File set, output also goes to a
// rotating file. The returned closer releases the file and is never nil.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := security.ValidateFilePath(opts.File); err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(filepath.Dir(opts.File), logDirMode); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
		closer = rotator
	}

	ApplyLevel(logger, opts.Level, opts.Verbose)
	return logger, closer, nil
}

// ApplyLevel sets the logger level. Debug and trace need verbose mode since
// they include unmasked event fields; otherwise they are capped at info.
func ApplyLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	if level == "" {
		logger.SetLevel(defaultLogMode)
		return
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(defaultLogMode)
		return
	}
	if parsed > logrus.InfoLevel {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
