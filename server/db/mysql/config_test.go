package mysql

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOpenRejectsMixedConfig(t *testing.T) {
	adp := &adapter{}
	err := adp.Open(json.RawMessage(`{"User": "root", "DBName": "vidroom", "dsn": "root@/vidroom"}`))
	if err == nil || !strings.Contains(err.Error(), "deprecated") {
		t.Errorf("Open() with both mysql.Config and dsn = %v, want deprecation error", err)
	}
	if adp.IsOpen() {
		t.Error("adapter is open after a failed Open()")
	}
}

func TestOpenMissingConfig(t *testing.T) {
	adp := &adapter{}
	if err := adp.Open(nil); err == nil {
		t.Error("Open(nil) succeeded, want error")
	}
}
