// Command ad569x drives an AD5691R/AD5692R/AD5693R DAC from the command line
// through an MCP2221A USB bridge, any periph.io I²C bus, or a dry-run bus
// that only logs the frames it would send.
//
// Examples:
//
//	ad569x --backend mcp2221 init
//	ad569x --backend periph --bus /dev/i2c-1 write 0x8000
//	ad569x --backend dry --loglevel 5 mode --mode 100k --ref
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ardnew/ad569x"
	"github.com/ardnew/ad569x/bustest"
	"github.com/ardnew/ad569x/mcp2221"
)

func main() {
	if err := newApp(os.Stderr, nil).Run(os.Args); nil != err {
		fmt.Fprintf(os.Stderr, "ad569x: %v\n", err)
		os.Exit(1)
	}
}

// parseValue parses a 16-bit DAC count. Any Go integer literal is accepted
// (decimal, 0x hex, 0b binary, 0o octal).
func parseValue(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if nil != err {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint16(v), nil
}

// parseAddr parses a 7-bit I²C address.
func parseAddr(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 7)
	if nil != err {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint8(v), nil
}

// parseMode maps a mode name to its operating mode.
func parseMode(s string) (ad569x.Mode, error) {
	switch strings.ToLower(s) {
	case "normal", "0":
		return ad569x.ModeNormal, nil
	case "1k", "1":
		return ad569x.ModeOutput1k, nil
	case "100k", "2":
		return ad569x.ModeOutput100k, nil
	case "tristate", "3":
		return ad569x.ModeTristate, nil
	}
	return 0, fmt.Errorf("invalid mode %q (want normal, 1k, 100k, or tristate)", s)
}

// app carries the state shared by all subcommands of one invocation.
type app struct {
	out  io.Writer
	dry  *bustest.Recorder
	log  *logrus.Entry
	sess *session
	dev  *ad569x.Device
}

// newApp builds the CLI. Log output goes to out; dry, if not nil, is the
// transport used by the dry backend.
func newApp(out io.Writer, dry *bustest.Recorder) *cli.App {

	a := &app{out: out, dry: dry}

	return &cli.App{
		Name:  "ad569x",
		Usage: "control an AD569x I²C DAC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Value:   backendMCP2221,
				Usage:   "transport: mcp2221, periph, or dry",
				EnvVars: []string{"AD569X_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Value:   fmt.Sprintf("0x%02X", ad569x.DefaultAddress),
				Usage:   "7-bit I²C address of the DAC",
				EnvVars: []string{"AD569X_ADDR"},
			},
			&cli.StringFlag{
				Name:    "bus",
				Usage:   "periph I²C bus name (empty selects the first bus)",
				EnvVars: []string{"AD569X_BUS"},
			},
			&cli.UintFlag{
				Name:  "index",
				Usage: "MCP2221A enumeration index",
			},
			&cli.UintFlag{
				Name:  "speed",
				Usage: "I²C clock in Hz (0 keeps the bus default)",
			},
			&cli.IntFlag{
				Name:    "loglevel",
				Value:   int(logrus.InfoLevel),
				Usage:   "log level from 0 (panic) to 6 (trace); 5 logs every frame",
				EnvVars: []string{"AD569X_LOGLEVEL"},
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "soft reset, then normal mode with reference on and 1x gain",
				Flags:  []cli.Flag{resetAdvisoryFlag()},
				Action: a.initialize,
			},
			{
				Name:      "stage",
				Usage:     "write the input register without changing the output",
				ArgsUsage: "VALUE",
				Action:    a.stage,
			},
			{
				Name:   "commit",
				Usage:  "copy the input register to the output",
				Action: a.commit,
			},
			{
				Name:      "write",
				Usage:     "write the input register and update the output",
				ArgsUsage: "VALUE",
				Action:    a.write,
			},
			{
				Name:   "reset",
				Usage:  "soft reset: zero-scale output, registers to power-on defaults",
				Flags:  []cli.Flag{resetAdvisoryFlag()},
				Action: a.reset,
			},
			{
				Name:  "mode",
				Usage: "write the control register",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "normal", Usage: "normal, 1k, 100k, or tristate"},
					&cli.BoolFlag{Name: "ref", Usage: "enable the internal reference"},
					&cli.BoolFlag{Name: "gain", Usage: "2x output gain"},
				},
				Action: a.mode,
			},
			{
				Name:   "scan",
				Usage:  "list responding I²C addresses (mcp2221 backend only)",
				Action: a.scan,
			},
		},
	}
}

// resetAdvisoryFlag lets the user accept the bus error the chip may cause by
// resetting before it acknowledges the reset frame.
func resetAdvisoryFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "reset-advisory",
		Usage: "log a bus error from the reset frame instead of failing",
	}
}

func (a *app) before(c *cli.Context) error {

	a.log = newLogger(a.out, c.Int("loglevel"))

	switch c.Args().First() {
	case "", "help", "h":
		// nothing to open
		return nil
	}

	addr, err := parseAddr(c.String("addr"))
	if nil != err {
		return err
	}

	cfg := busConfig{
		backend: c.String("backend"),
		bus:     c.String("bus"),
		index:   c.Uint("index"),
		speed:   c.Uint("speed"),
	}
	if a.sess, err = openBus(cfg, a.dry, a.log); nil != err {
		return err
	}
	a.dev = ad569x.New(a.sess.bus, addr)
	return nil
}

func (a *app) after(c *cli.Context) error {
	if nil == a.sess {
		return nil
	}
	err := a.sess.Close()
	a.sess = nil
	return err
}

// device returns the opened device or an error if no bus was opened.
func (a *app) device() (*ad569x.Device, error) {
	if nil == a.dev {
		return nil, fmt.Errorf("no bus opened")
	}
	return a.dev, nil
}

// resetResult applies the --reset-advisory policy to a reset error.
func (a *app) resetResult(c *cli.Context, err error) error {
	if nil != err && c.Bool("reset-advisory") {
		a.log.WithError(err).Warn("reset frame not acknowledged; chip may have reset anyway")
		return nil
	}
	return err
}

func (a *app) initialize(c *cli.Context) error {

	d, err := a.device()
	if nil != err {
		return err
	}

	if !c.Bool("reset-advisory") {
		if err := d.Init(); nil != err {
			return fmt.Errorf("Init(): %w", err)
		}
		a.log.Info("initialized")
		return nil
	}

	// same sequence as Init, tolerating a NACK on the reset frame
	if err := a.resetResult(c, d.Reset()); nil != err {
		return fmt.Errorf("Reset(): %w", err)
	}
	if err := d.SetMode(ad569x.ModeNormal, true, false); nil != err {
		return fmt.Errorf("SetMode(): %w", err)
	}

	a.log.Info("initialized")
	return nil
}

func (a *app) stage(c *cli.Context) error {

	d, err := a.device()
	if nil != err {
		return err
	}
	v, err := parseValue(c.Args().First())
	if nil != err {
		return err
	}

	if err := d.Stage(v); nil != err {
		return fmt.Errorf("Stage(): %w", err)
	}

	a.log.WithField("value", v).Info("staged")
	return nil
}

func (a *app) commit(c *cli.Context) error {

	d, err := a.device()
	if nil != err {
		return err
	}

	if err := d.Commit(); nil != err {
		return fmt.Errorf("Commit(): %w", err)
	}

	a.log.Info("committed")
	return nil
}

func (a *app) write(c *cli.Context) error {

	d, err := a.device()
	if nil != err {
		return err
	}
	v, err := parseValue(c.Args().First())
	if nil != err {
		return err
	}

	if err := d.WriteAndCommit(v); nil != err {
		return fmt.Errorf("WriteAndCommit(): %w", err)
	}

	a.log.WithField("value", v).Info("written")
	return nil
}

func (a *app) reset(c *cli.Context) error {

	d, err := a.device()
	if nil != err {
		return err
	}

	if err := a.resetResult(c, d.Reset()); nil != err {
		return fmt.Errorf("Reset(): %w", err)
	}

	a.log.Info("reset")
	return nil
}

func (a *app) mode(c *cli.Context) error {

	d, err := a.device()
	if nil != err {
		return err
	}
	m, err := parseMode(c.String("mode"))
	if nil != err {
		return err
	}

	if err := d.SetMode(m, c.Bool("ref"), c.Bool("gain")); nil != err {
		return fmt.Errorf("SetMode(): %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"mode": m,
		"ref":  c.Bool("ref"),
		"gain": c.Bool("gain"),
	}).Info("mode set")
	return nil
}

func (a *app) scan(c *cli.Context) error {

	if nil == a.sess || nil == a.sess.bridge {
		return fmt.Errorf("scan requires the %s backend", backendMCP2221)
	}

	found, err := a.sess.bridge.Scan(mcp2221.I2CMinAddr, mcp2221.I2CMaxAddr)
	if nil != err {
		return fmt.Errorf("Scan(): %w", err)
	}
	for _, addr := range found {
		a.log.WithField("addr", fmt.Sprintf("0x%02X", addr)).Info("found")
	}
	return nil
}
