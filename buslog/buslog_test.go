package buslog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ardnew/ad569x"
	"github.com/ardnew/ad569x/bustest"
)

func TestWriteLogsFrame(t *testing.T) {

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	r := &bustest.Recorder{}
	d := ad569x.New(New(r, log), ad569x.DefaultAddress)

	if err := d.WriteAndCommit(0x8001); nil != err {
		t.Fatalf("[ ] FAIL: WriteAndCommit(): %v", err)
	}

	if diff := cmp.Diff([]ad569x.Frame{{0x30, 0x80, 0x01}}, r.Frames()); "" != diff {
		t.Errorf("[ ] FAIL: forwarded frames (-want +got):\n%s", diff)
	}

	e := hook.LastEntry()
	if nil == e {
		t.Fatalf("[ ] FAIL: no log entry")
	}
	if logrus.DebugLevel != e.Level {
		t.Errorf("[ ] FAIL: level %v != debug", e.Level)
	}
	if "WriteInputUpdate" != e.Data["cmd"] || uint16(0x8001) != e.Data["data"] || ad569x.DefaultAddress != e.Data["addr"] {
		t.Errorf("[ ] FAIL: fields %+v", e.Data)
	}
}

func TestWriteErrorUnchanged(t *testing.T) {

	log, hook := test.NewNullLogger()
	errBus := errors.New("nack")

	r := &bustest.Recorder{FailAt: 1, Err: errBus}
	d := ad569x.New(New(r, log), ad569x.DefaultAddress)

	if err := d.Reset(); errBus != err {
		t.Fatalf("[ ] FAIL: Reset() == %v != %v", err, errBus)
	}

	e := hook.LastEntry()
	if nil == e || logrus.WarnLevel != e.Level || errBus != e.Data[logrus.ErrorKey] {
		t.Errorf("[ ] FAIL: warn entry missing: %+v", e)
	}
}

func TestWriteRaw(t *testing.T) {

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	r := &bustest.Recorder{}
	if err := New(r, log).Write(0x10, []byte{0x01}); nil != err {
		t.Fatalf("[ ] FAIL: Write(): %v", err)
	}

	e := hook.LastEntry()
	if nil == e {
		t.Fatalf("[ ] FAIL: no log entry")
	}
	if _, ok := e.Data["cmd"]; ok {
		t.Errorf("[ ] FAIL: short write decoded as frame: %+v", e.Data)
	}
}
