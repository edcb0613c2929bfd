package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/ad569x"
	"github.com/ardnew/ad569x/bustest"
)

func run(dry *bustest.Recorder, args ...string) (string, error) {
	var out bytes.Buffer
	err := newApp(&out, dry).Run(append([]string{"ad569x", "--backend", "dry"}, args...))
	return out.String(), err
}

func TestCommands(t *testing.T) {

	type TC struct {
		args []string
		addr uint8
		out  []ad569x.Frame
	}

	tc := []TC{
		{args: []string{"init"}, addr: 0x4C, out: []ad569x.Frame{{0x40, 0x80, 0x00}, {0x40, 0x10, 0x00}}},
		{args: []string{"stage", "0x1234"}, addr: 0x4C, out: []ad569x.Frame{{0x10, 0x12, 0x34}}},
		{args: []string{"commit"}, addr: 0x4C, out: []ad569x.Frame{{0x20, 0x00, 0x00}}},
		{args: []string{"write", "65535"}, addr: 0x4C, out: []ad569x.Frame{{0x30, 0xFF, 0xFF}}},
		{args: []string{"reset"}, addr: 0x4C, out: []ad569x.Frame{{0x40, 0x80, 0x00}}},
		{args: []string{"mode", "--mode", "tristate", "--gain"}, addr: 0x4C, out: []ad569x.Frame{{0x40, 0x68, 0x00}}},
		{args: []string{"mode", "--mode", "1k", "--ref"}, addr: 0x4C, out: []ad569x.Frame{{0x40, 0x30, 0x00}}},
		{args: []string{"--addr", "0x4F", "write", "0b1"}, addr: 0x4F, out: []ad569x.Frame{{0x30, 0x00, 0x01}}},
	}

	for _, c := range tc {

		r := &bustest.Recorder{}
		_, err := run(r, c.args...)
		d := fmt.Sprintf("ad569x %v", c.args)

		if nil != err {
			t.Errorf("[ ] FAIL: %s | %v", d, err)
			continue
		}
		if diff := cmp.Diff(c.out, r.Frames()); "" != diff {
			t.Errorf("[ ] FAIL: %s | frames (-want +got):\n%s", d, diff)
			continue
		}
		for _, w := range r.Writes() {
			if c.addr != w.Addr {
				t.Errorf("[ ] FAIL: %s | address 0x%02X != 0x%02X", d, w.Addr, c.addr)
			}
		}
		t.Logf("[ ] PASS: %s", d)
	}
}

func TestResetAdvisory(t *testing.T) {

	errBus := errors.New("nack")

	r := &bustest.Recorder{FailAt: 1, Err: errBus}
	if _, err := run(r, "init"); !errors.Is(err, errBus) {
		t.Errorf("[ ] FAIL: init == %v != %v", err, errBus)
	}
	if 1 != len(r.Writes()) {
		t.Errorf("[ ] FAIL: init wrote %d frames after a failed reset", len(r.Writes()))
	}

	r = &bustest.Recorder{FailAt: 1, Err: errBus}
	out, err := run(r, "init", "--reset-advisory")
	if nil != err {
		t.Fatalf("[ ] FAIL: init --reset-advisory == %v", err)
	}
	if diff := cmp.Diff([]ad569x.Frame{{0x40, 0x80, 0x00}, {0x40, 0x10, 0x00}}, r.Frames()); "" != diff {
		t.Errorf("[ ] FAIL: init --reset-advisory frames (-want +got):\n%s", diff)
	}
	if !bytes.Contains([]byte(out), []byte("may have reset anyway")) {
		t.Errorf("[ ] FAIL: advisory warning not logged:\n%s", out)
	}

	r = &bustest.Recorder{FailAt: 1, Err: errBus}
	if _, err := run(r, "reset", "--reset-advisory"); nil != err {
		t.Errorf("[ ] FAIL: reset --reset-advisory == %v", err)
	}
}

func TestBadInput(t *testing.T) {

	tc := [][]string{
		{"stage", "0x10000"},
		{"write", "volts"},
		{"mode", "--mode", "fast"},
		{"--addr", "0x80", "commit"},
		{"scan"},
	}

	for _, args := range tc {
		r := &bustest.Recorder{}
		if _, err := run(r, args...); nil == err {
			t.Errorf("[ ] FAIL: ad569x %v accepted", args)
		}
		if 0 != len(r.Writes()) {
			t.Errorf("[ ] FAIL: ad569x %v wrote %d frames", args, len(r.Writes()))
		}
	}

	var out bytes.Buffer
	err := newApp(&out, nil).Run([]string{"ad569x", "--backend", "spi", "commit"})
	if nil == err {
		t.Errorf("[ ] FAIL: unknown backend accepted")
	}
}

func TestParseMode(t *testing.T) {

	tc := map[string]ad569x.Mode{
		"normal":   ad569x.ModeNormal,
		"1K":       ad569x.ModeOutput1k,
		"100k":     ad569x.ModeOutput100k,
		"Tristate": ad569x.ModeTristate,
		"3":        ad569x.ModeTristate,
	}

	for s, want := range tc {
		if m, err := parseMode(s); nil != err || want != m {
			t.Errorf("[ ] FAIL: parseMode(%q) == (%v, %v)", s, m, err)
		}
	}
}
