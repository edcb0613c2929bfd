package main

import (
	"io"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

// newLogger returns a logger writing to out at the given level (0 = panic,
// 6 = trace).
func newLogger(out io.Writer, level int) *logrus.Entry {
	logrus.ErrorKey = "$error"
	logger := logrus.New()
	logger.SetOutput(out)
	if level < int(logrus.PanicLevel) || level > int(logrus.TraceLevel) {
		level = int(logrus.InfoLevel)
	}
	logger.SetLevel(logrus.Level(level))
	customFormatter := new(prefixed.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	customFormatter.PrefixPadding = 20
	customFormatter.SpacePadding = 50
	logger.SetFormatter(customFormatter)
	return logrus.NewEntry(logger).WithField("prefix", "ad569x")
}
