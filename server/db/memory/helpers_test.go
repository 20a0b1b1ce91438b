package memory

import t "github.com/vidroom/vidroom/server/store/types"

func mustRoom(name, sid string) *t.Room {
	room := &t.Room{Name: name, SessionID: sid}
	room.InitTimes()
	return room
}
