package common

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vidroom/vidroom/server/store/types"
)

func TestEmbedJSON(t *testing.T) {
	if got := EmbedToJSON(nil); got != nil {
		t.Errorf("EmbedToJSON(nil) = %q, want nil", got)
	}
	if got, err := EmbedFromJSON(nil); got != nil || err != nil {
		t.Errorf("EmbedFromJSON(nil) = %v, %v, want nil, nil", got, err)
	}
	if got, err := EmbedFromJSON([]byte("null")); got != nil || err != nil {
		t.Errorf("EmbedFromJSON(null) = %v, %v, want nil, nil", got, err)
	}

	embed := &types.EmbedProps{Room: "foo", URL: "https://example.com", Width: "600", Height: "400"}
	got, err := EmbedFromJSON(EmbedToJSON(embed))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(embed, got); diff != "" {
		t.Errorf("embed props mismatch (-want +got):\n%s", diff)
	}

	if _, err := EmbedFromJSON([]byte("{")); err == nil {
		t.Error("EmbedFromJSON() of truncated JSON succeeded, want error")
	}
}
