package redis

import (
	"testing"
	"time"

	"github.com/vidroom/vidroom/server/db/common/testsuite"
)

func TestAdapterSuite(t *testing.T) {
	adp := &adapter{}
	if err := adp.Open(testsuite.AdapterConfig(t, adapterName)); err != nil {
		t.Fatal(err)
	}
	defer adp.Close()

	testsuite.RunAll(t, adp)
}

func TestKeys(t *testing.T) {
	adp := &adapter{prefix: defaultPrefix}
	if got := adp.roomKey("alice-standup"); got != "vidroom:room:alice-standup" {
		t.Errorf("roomKey() = %q", got)
	}
	if got := adp.roomsKey(); got != "vidroom:rooms" {
		t.Errorf("roomsKey() = %q", got)
	}
	if got := adp.versionKey(); got != "vidroom:kvmeta:version" {
		t.Errorf("versionKey() = %q", got)
	}
}

func TestFromMillis(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	if got := fromMillis("1714559400000"); !got.Equal(ts) {
		t.Errorf("fromMillis() = %v, want %v", got, ts)
	}
	for _, val := range []string{"", "0", "garbage"} {
		if got := fromMillis(val); !got.IsZero() {
			t.Errorf("fromMillis(%q) = %v, want zero", val, got)
		}
	}
}
