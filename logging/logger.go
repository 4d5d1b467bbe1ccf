package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. An unparseable level falls back to
// info rather than failing; a bad log level should never stop the vehicle.
func NewLogger(level string, logFile string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("unable to open log file, logging to stderr only")
		} else {
			log.SetOutput(io.MultiWriter(os.Stderr, file))
		}
	}

	return log
}

// Component tags an entry for one subsystem so its lines can be filtered.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
