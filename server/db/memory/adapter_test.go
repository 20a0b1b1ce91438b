package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/vidroom/vidroom/server/db/common/testsuite"
)

func TestAdapterSuite(t *testing.T) {
	adp := New()
	if err := adp.Open(nil); err != nil {
		t.Fatal(err)
	}
	defer adp.Close()

	testsuite.RunAll(t, adp)
}

func TestOpenPreloadsRooms(t *testing.T) {
	adp := New()
	if err := adp.Open(json.RawMessage(`{"rooms": {"lobby": "1_MX4xMjM0NX5-lobby"}}`)); err != nil {
		t.Fatal(err)
	}
	defer adp.Close()

	room, err := adp.RoomGet(context.Background(), "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if room == nil || room.SessionID != "1_MX4xMjM0NX5-lobby" {
		t.Errorf("RoomGet(lobby) = %+v, want preloaded session", room)
	}

	if err := adp.Open(nil); err == nil {
		t.Error("second Open() succeeded, want error")
	}
}

func TestClosedAdapterFails(t *testing.T) {
	adp := New()
	if _, err := adp.RoomGet(context.Background(), "lobby"); err == nil {
		t.Error("RoomGet() on a closed adapter succeeded, want error")
	}
	if _, err := adp.RoomNames(context.Background()); err == nil {
		t.Error("RoomNames() on a closed adapter succeeded, want error")
	}
}

func TestReturnedRoomIsACopy(t *testing.T) {
	adp := New()
	if err := adp.Open(nil); err != nil {
		t.Fatal(err)
	}
	defer adp.Close()

	ctx := context.Background()
	if err := adp.RoomUpsert(ctx, mustRoom("a", "sid")); err != nil {
		t.Fatal(err)
	}
	room, _ := adp.RoomGet(ctx, "a")
	room.SessionID = "mutated"

	again, _ := adp.RoomGet(ctx, "a")
	if again.SessionID != "sid" {
		t.Errorf("SessionID = %q after mutating a returned copy, want %q", again.SessionID, "sid")
	}
}
