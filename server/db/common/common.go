// Package common contains utility methods used by all adapters.
package common

import (
	"encoding/json"

	t "github.com/vidroom/vidroom/server/store/types"
)

const (
	// RoomsTable is the name of the table, collection or path holding room records.
	RoomsTable = "rooms"
	// MetaTable is the name of the table holding key-value metadata such as the schema version.
	MetaTable = "kvmeta"
	// VersionKey is the key of the schema version in the MetaTable.
	VersionKey = "version"
)

// EmbedToJSON converts embed properties to JSON for storing in a text or JSON column.
// Nil props are stored as NULL.
func EmbedToJSON(embed *t.EmbedProps) []byte {
	if embed == nil {
		return nil
	}
	res, _ := json.Marshal(embed)
	return res
}

// EmbedFromJSON is the inverse of EmbedToJSON.
func EmbedFromJSON(src []byte) (*t.EmbedProps, error) {
	if len(src) == 0 || string(src) == "null" {
		return nil, nil
	}
	var embed t.EmbedProps
	if err := json.Unmarshal(src, &embed); err != nil {
		return nil, err
	}
	return &embed, nil
}
