package postgres

import (
	"testing"

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
