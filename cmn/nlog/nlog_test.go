package nlog_test

import (
	"testing"

	"github.com/banyanmesh/core/cmn/nlog"
)

func TestLogDoesNotPanic(t *testing.T) {
	nlog.Infof("hello %s", "world")
	nlog.Warningln("careful")
	nlog.Errorf("boom %d", 7)
	nlog.Flush()
	if nlog.Since() < 0 {
		t.Fatal("negative duration")
	}
}
