package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/internal/termfmt"
)

func setupLogging(debug bool) {
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat:  report.TimestampFormat,
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	})
	logrus.SetOutput(os.Stderr)

	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	termfmt.SetEnabled(isTerminal(os.Stdout))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
