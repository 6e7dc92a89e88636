package logger

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	logrus "github.com/sirupsen/logrus"
)

var output io.Writer = os.Stdout

// Setup initializes Logrus writing to a rotating file (and stdout).
func Setup(path, level string) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 7,
		MaxAge:     7, // days
		Compress:   true,
	}

	output = io.MultiWriter(os.Stdout, rotator)
	logrus.SetOutput(output)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logrus.SetLevel(ParseLevel(level))
}

// ParseLevel falls back to debug for unknown names.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.DebugLevel
	}
	return lvl
}

// Logger returns the standard Logrus logger.
func Logger() *logrus.Logger {
	return logrus.StandardLogger()
}

// Writer is the destination Setup configured, for the HTTP access log.
func Writer() io.Writer {
	return output
}
