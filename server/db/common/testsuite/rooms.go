// Package testsuite contains adapter tests shared by all database adapters.
package testsuite

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	adapter "github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common/test_data"
	"github.com/vidroom/vidroom/server/store/types"
)

// Database round trips may lose sub-millisecond precision and the time zone.
var timeOpt = cmpopts.EquateApproxTime(time.Second)

// RunAll runs every test of the suite against a freshly created database.
func RunAll(t *testing.T, adp adapter.Adapter) {
	td := test_data.InitTestData()
	t.Run("CreateDb", func(t *testing.T) { RunCreateDb(t, adp) })
	t.Run("RoomUpsert", func(t *testing.T) { RunRoomUpsert(t, adp, td) })
	t.Run("RoomGet", func(t *testing.T) { RunRoomGet(t, adp, td) })
	t.Run("RoomNames", func(t *testing.T) { RunRoomNames(t, adp, td) })
	t.Run("RoomReplace", func(t *testing.T) { RunRoomReplace(t, adp, td) })
	t.Run("ConcurrentUpsert", func(t *testing.T) { RunConcurrentUpsert(t, adp) })
}

func RunCreateDb(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	if err := adp.CreateDb(true); err != nil {
		t.Fatal(err)
	}
	if err := adp.CheckDbVersion(); err != nil {
		t.Fatal(err)
	}
	vers, err := adp.GetDbVersion()
	if err != nil {
		t.Fatal(err)
	}
	if vers != adp.Version() {
		t.Errorf("GetDbVersion() = %d, want %d", vers, adp.Version())
	}
}

func RunRoomUpsert(t *testing.T, adp adapter.Adapter, td *test_data.TestData) {
	t.Helper()

	for _, room := range td.Rooms {
		if err := adp.RoomUpsert(context.Background(), room); err != nil {
			t.Fatal(err)
		}
	}
}

func RunRoomGet(t *testing.T, adp adapter.Adapter, td *test_data.TestData) {
	t.Helper()

	for _, want := range td.Rooms {
		got, err := adp.RoomGet(context.Background(), want.Name)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got, timeOpt); diff != "" {
			t.Errorf("RoomGet(%q) mismatch (-want +got):\n%s", want.Name, diff)
		}
	}

	// Test not found
	got, err := adp.RoomGet(context.Background(), "asdfasdfasdf")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("Room should be nil but got:", got)
	}
}

func RunRoomNames(t *testing.T, adp adapter.Adapter, td *test_data.TestData) {
	t.Helper()

	got, err := adp.RoomNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var want []string
	for _, room := range td.Rooms {
		want = append(want, room.Name)
	}
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("RoomNames() mismatch (-want +got):\n%s", diff)
	}
}

// RunRoomReplace checks last-write-wins and that CreatedAt survives the update.
func RunRoomReplace(t *testing.T, adp adapter.Adapter, td *test_data.TestData) {
	t.Helper()

	orig := td.Rooms[1]
	update := &types.Room{
		Name:      orig.Name,
		SessionID: "2_MX4xMjM0NX5-replaced",
		CreatedAt: td.Now.Add(time.Hour),
		UpdatedAt: td.Now.Add(time.Hour),
	}
	if err := adp.RoomUpsert(context.Background(), update); err != nil {
		t.Fatal(err)
	}

	got, err := adp.RoomGet(context.Background(), orig.Name)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatalf("RoomGet(%q) = nil after replace", orig.Name)
	}
	if got.SessionID != update.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, update.SessionID)
	}
	if got.Embed != nil {
		t.Errorf("Embed = %+v, want nil", got.Embed)
	}
	if !cmp.Equal(got.CreatedAt, orig.CreatedAt, timeOpt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
	if !cmp.Equal(got.UpdatedAt, update.UpdatedAt, timeOpt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, update.UpdatedAt)
	}

	names, err := adp.RoomNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != len(td.Rooms) {
		t.Errorf("RoomNames() returned %d rooms after replace, want %d", len(names), len(td.Rooms))
	}
}

// RunConcurrentUpsert writes distinct rooms in parallel and reads each one back.
func RunConcurrentUpsert(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	const count = 16
	var wg sync.WaitGroup
	errs := make(chan error, count)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := &types.Room{Name: "parallel-" + strconv.Itoa(i), SessionID: "sid-" + strconv.Itoa(i)}
			room.InitTimes()
			if err := adp.RoomUpsert(context.Background(), room); err != nil {
				errs <- err
				return
			}
			got, err := adp.RoomGet(context.Background(), room.Name)
			if err != nil {
				errs <- err
				return
			}
			if got == nil || got.SessionID != room.SessionID {
				t.Errorf("RoomGet(%q) = %+v, want session %q", room.Name, got, room.SessionID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
