package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/vidroom/vidroom/server/db/memory"
	"github.com/vidroom/vidroom/server/store"
	"github.com/vidroom/vidroom/server/store/types"
)

func openMemory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(json.RawMessage(`{"use_adapter": "memory"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CheckDbVersion(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenUnknownAdapter(t *testing.T) {
	_, err := store.Open(json.RawMessage(`{"use_adapter": "cassandra"}`))
	if err == nil {
		t.Fatal("Open() with an unknown adapter succeeded, want error")
	}
	if !strings.Contains(err.Error(), "use one of: memory") {
		t.Errorf("Open() error = %q, want the list of adapters", err)
	}
	if _, err := store.Open(json.RawMessage(`{`)); err == nil {
		t.Error("Open() with malformed config succeeded, want error")
	}
}

func TestReadYourWrites(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	sid, err := s.GetSession(ctx, "alice-standup")
	if err != nil {
		t.Fatal(err)
	}
	if sid != "" {
		t.Errorf("GetSession() of a new room = %q, want empty", sid)
	}

	if err := s.SetSession(ctx, "alice-standup", "sid-1", nil); err != nil {
		t.Fatal(err)
	}
	if sid, _ = s.GetSession(ctx, "alice-standup"); sid != "sid-1" {
		t.Errorf("GetSession() = %q, want %q", sid, "sid-1")
	}

	// Last write wins.
	if err := s.SetSession(ctx, "alice-standup", "sid-2", nil); err != nil {
		t.Fatal(err)
	}
	if sid, _ = s.GetSession(ctx, "alice-standup"); sid != "sid-2" {
		t.Errorf("GetSession() after overwrite = %q, want %q", sid, "sid-2")
	}
}

func TestSetSessionKeepsEmbedProps(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	embed := &types.EmbedProps{Room: "foo", URL: "https://example.com", Width: "600", Height: "400"}
	if err := s.SetSession(ctx, "embed-1", "sid-1", embed); err != nil {
		t.Fatal(err)
	}
	room, err := s.GetRoom(ctx, "embed-1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(embed, room.Embed); diff != "" {
		t.Errorf("embed props mismatch (-want +got):\n%s", diff)
	}
}

func TestListRooms(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rooms == nil || len(rooms) != 0 {
		t.Errorf("ListRooms() on an empty store = %#v, want empty non-nil slice", rooms)
	}

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := s.SetSession(ctx, name, "sid-"+name, nil); err != nil {
			t.Fatal(err)
		}
	}
	rooms, err = s.ListRooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alpha", "bravo", "charlie"}, rooms); diff != "" {
		t.Errorf("ListRooms() mismatch (-want +got):\n%s", diff)
	}
}

func TestRoomNamesAreNormalized(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.SetSession(ctx, "cafe\u0301", "sid-1", nil); err != nil {
		t.Fatal(err)
	}
	if sid, _ := s.GetSession(ctx, "caf\u00e9"); sid != "sid-1" {
		t.Errorf("GetSession() of the composed form = %q, want %q", sid, "sid-1")
	}

	if err := s.SetSession(ctx, "a/b", "sid", nil); !errors.Is(err, types.ErrMalformed) {
		t.Errorf("SetSession() with a slash = %v, want %v", err, types.ErrMalformed)
	}
	if err := s.SetSession(ctx, "room", "", nil); !errors.Is(err, types.ErrMalformed) {
		t.Errorf("SetSession() with empty session = %v, want %v", err, types.ErrMalformed)
	}
}

func TestBackendErrorsAreUnavailable(t *testing.T) {
	s := openMemory(t)
	s.Close()

	_, err := s.GetSession(context.Background(), "room")
	if !errors.Is(err, types.ErrUnavailable) {
		t.Errorf("GetSession() on a closed store = %v, want %v", err, types.ErrUnavailable)
	}
	var serr *store.Error
	if !errors.As(err, &serr) || serr.Op != "get" {
		t.Errorf("GetSession() error = %#v, want *store.Error with Op get", err)
	}
}

func TestGetAdapterNames(t *testing.T) {
	if diff := cmp.Diff([]string{"memory"}, store.GetAdapterNames()); diff != "" {
		t.Errorf("GetAdapterNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestDbStats(t *testing.T) {
	s := openMemory(t)
	if err := s.SetSession(context.Background(), "alice-standup", "sid-1", nil); err != nil {
		t.Fatal(err)
	}
	stats := s.DbStats()
	if stats == nil {
		t.Fatal("DbStats() = nil for an open store")
	}
	if diff := cmp.Diff(map[string]int{"rooms": 1}, stats()); diff != "" {
		t.Errorf("DbStats() mismatch (-want +got):\n%s", diff)
	}
}
