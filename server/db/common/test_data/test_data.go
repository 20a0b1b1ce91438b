// Package test_data provides room records shared by adapter tests.
package test_data

import (
	"strconv"
	"time"

	"github.com/vidroom/vidroom/server/store/types"
)

// TestData is a set of rooms used by the adapter test suite.
type TestData struct {
	Rooms []*types.Room
	Now   time.Time
}

// InitTestData creates a fresh set of test rooms.
func InitTestData() *TestData {
	now := types.TimeNow()
	td := &TestData{Now: now}
	for i := 0; i < 5; i++ {
		room := &types.Room{
			Name:      "room-" + strconv.Itoa(i),
			SessionID: "1_MX4xMjM0NX5-" + strconv.Itoa(i),
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
		room.UpdatedAt = room.CreatedAt
		td.Rooms = append(td.Rooms, room)
	}
	td.Rooms[1].Embed = &types.EmbedProps{
		Room:   "room-1",
		Name:   "sample",
		URL:    "https://example.com",
		Width:  "600",
		Height: "400",
	}
	// Non-ASCII name.
	td.Rooms[4].Name = "Besprechungsraum-Ü"
	return td
}
