package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/ad569x"
	"github.com/ardnew/ad569x/buslog"
	"github.com/ardnew/ad569x/bustest"
	"github.com/ardnew/ad569x/mcp2221"
	"github.com/ardnew/ad569x/periphbus"
)

// Backend names accepted by --backend.
const (
	backendMCP2221 = "mcp2221"
	backendPeriph  = "periph"
	backendDry     = "dry"
)

// busConfig selects and configures the transport.
type busConfig struct {
	backend string
	bus     string // periph bus name
	index   uint   // mcp2221 enumeration index
	speed   uint   // Hz, 0 keeps the default
}

// session is an opened transport plus everything that must be released
// with it.
type session struct {
	bus     ad569x.Bus
	bridge  *mcp2221.Bridge // set for the mcp2221 backend only
	closers []func() error
}

func (s *session) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	s.closers = nil
	return err
}

// openBus opens the configured transport and wraps it in a frame logger.
// dry is used as the transport for the dry backend.
func openBus(cfg busConfig, dry *bustest.Recorder, log logrus.FieldLogger) (*session, error) {

	s := &session{}

	switch strings.ToLower(cfg.backend) {
	case backendMCP2221:
		b, err := mcp2221.Open(byte(cfg.index), mcp2221.VID, mcp2221.PID)
		if nil != err {
			return nil, fmt.Errorf("mcp2221.Open(): %w", err)
		}
		s.closers = append(s.closers, b.Close)
		if 0 != cfg.speed {
			if err := b.SetSpeed(uint32(cfg.speed)); nil != err {
				return nil, multierr.Append(fmt.Errorf("SetSpeed(): %w", err), s.Close())
			}
		}
		s.bus, s.bridge = b, b

	case backendPeriph:
		b, bc, err := periphbus.Open(cfg.bus)
		if nil != err {
			return nil, err
		}
		s.closers = append(s.closers, bc.Close)
		if 0 != cfg.speed {
			if err := b.SetSpeed(physic.Frequency(cfg.speed) * physic.Hertz); nil != err {
				return nil, multierr.Append(fmt.Errorf("SetSpeed(): %w", err), s.Close())
			}
		}
		s.bus = b

	case backendDry:
		if nil == dry {
			dry = &bustest.Recorder{}
		}
		s.bus = dry

	default:
		return nil, fmt.Errorf("unknown backend %q (want %s, %s, or %s)",
			cfg.backend, backendMCP2221, backendPeriph, backendDry)
	}

	log.WithField("backend", cfg.backend).Debug("bus opened")
	s.bus = buslog.New(s.bus, log)
	return s, nil
}
