// Package types provides data types for persisting room to session mappings.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the room name or the record is malformed.
	ErrMalformed = StoreError("malformed")
	// ErrNotFound means the object was not found.
	ErrNotFound = StoreError("not found")
	// ErrUnavailable means the storage backend cannot be reached or failed the request.
	ErrUnavailable = StoreError("unavailable")
)

// MaxRoomNameLength is the maximum length of a room name in grapheme clusters.
const MaxRoomNameLength = 255

// NormalizeRoomName converts the room name to Unicode NFC and checks that it can be
// used as a storage key and as a URL path segment.
func NormalizeRoomName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", ErrMalformed
	}
	if uniseg.GraphemeClusterCount(name) > MaxRoomNameLength {
		return "", ErrMalformed
	}
	for _, r := range name {
		if r == '/' || unicode.IsControl(r) || r == unicode.ReplacementChar {
			return "", ErrMalformed
		}
	}
	return name, nil
}

// Dimension is a display size of the embedded room. The web client sends it as a
// string but a number is accepted too.
type Dimension string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (d *Dimension) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Dimension(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrMalformed
	}
	*d = Dimension(n.String())
	return nil
}

// Int returns the dimension as an integer, or 0 if it's not a whole number.
func (d Dimension) Int() int {
	v, _ := strconv.Atoi(string(d))
	return v
}

// EmbedProps is descriptive metadata of an iframe-embeddable room. It's stored and
// returned as is.
type EmbedProps struct {
	// Name of the room the embed points to.
	Room string `json:"room,omitempty" bson:"room,omitempty"`
	// Human-readable name of the embed.
	Name   string    `json:"name,omitempty" bson:"name,omitempty"`
	URL    string    `json:"url,omitempty" bson:"url,omitempty"`
	Width  Dimension `json:"width,omitempty" bson:"width,omitempty"`
	Height Dimension `json:"height,omitempty" bson:"height,omitempty"`
}

// Room maps a room name to the provider session.
type Room struct {
	Name      string      `json:"name" bson:"_id"`
	SessionID string      `json:"sessionId" bson:"sessionid"`
	Embed     *EmbedProps `json:"embedProps,omitempty" bson:"embed,omitempty"`
	CreatedAt time.Time   `json:"createdAt" bson:"createdat"`
	UpdatedAt time.Time   `json:"updatedAt" bson:"updatedat"`
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// InitTimes initializes time.Time variables in the record to current time.
func (r *Room) InitTimes() {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = TimeNow()
	}
	r.UpdatedAt = r.CreatedAt
}
