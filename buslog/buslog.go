// Package buslog wraps an ad569x.Bus and logs every frame written through it.
package buslog

import (
	"github.com/sirupsen/logrus"

	"github.com/ardnew/ad569x"
)

// Bus is an ad569x.Bus that logs each write before handing it to the next
// bus in the chain. Errors from the next bus are logged and returned
// unchanged.
type Bus struct {
	next ad569x.Bus
	log  logrus.FieldLogger
}

// New returns a logging bus in front of next. A nil log uses the logrus
// standard logger.
func New(next ad569x.Bus, log logrus.FieldLogger) *Bus {
	if nil == log {
		log = logrus.StandardLogger()
	}
	return &Bus{next: next, log: log}
}

// Write implements ad569x.Bus.
func (b *Bus) Write(addr uint8, buf []byte) error {

	entry := b.log.WithFields(logrus.Fields{
		"addr": addr,
		"len":  len(buf),
	})
	if f, ok := ad569x.DecodeFrame(buf); ok {
		entry = entry.WithFields(logrus.Fields{
			"cmd":  f.Command().String(),
			"data": f.Data(),
		})
	} else {
		entry = entry.WithField("raw", buf)
	}

	entry.Debug("bus write")

	err := b.next.Write(addr, buf)
	if nil != err {
		entry.WithError(err).Warn("bus write failed")
	}
	return err
}
