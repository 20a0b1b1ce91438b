package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"

	"github.com/vidroom/vidroom/server/coordinator"
	"github.com/vidroom/vidroom/server/provider"
	"github.com/vidroom/vidroom/server/provider/mock_provider"
	"github.com/vidroom/vidroom/server/store"
	"github.com/vidroom/vidroom/server/store/types"
)

type testServer struct {
	video *mock_provider.MockVideoService
	rooms *store.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctrl := gomock.NewController(t)
	rooms, err := store.Open(defaultStoreConfig)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rooms.Close() })

	ts := &testServer{
		video: mock_provider.NewMockVideoService(ctrl),
		rooms: rooms,
		mux:   http.NewServeMux(),
	}
	sh := &sessionHandler{coord: coordinator.New(ts.video, rooms)}
	sh.register(ts.mux)
	ts.mux.HandleFunc("GET /_/health", serveHealth)
	return ts
}

// do sends the request and decodes the JSON response into out.
func (ts *testServer) do(t *testing.T, method, target, body string, out interface{}) int {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	if out != nil {
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("%s %s: Content-Type = %q, body %q", method, target, ct, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: invalid response %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestGetSession(t *testing.T) {
	ts := newTestServer(t)
	ts.video.EXPECT().GetCredentials(gomock.Any()).
		Return(&provider.Credential{SessionID: "sess-1", Token: "tok-1", APIKey: "4711"}, nil)
	ts.video.EXPECT().GenerateToken(gomock.Any(), "sess-1").
		Return(&provider.Token{Token: "tok-2", APIKey: "4711"}, nil)

	var first, second provider.Credential
	if code := ts.do(t, "GET", "/session/alice-standup", "", &first); code != http.StatusOK {
		t.Fatalf("first GET status = %d", code)
	}
	if code := ts.do(t, "GET", "/session/alice-standup", "", &second); code != http.StatusOK {
		t.Fatalf("second GET status = %d", code)
	}
	want := provider.Credential{SessionID: "sess-1", Token: "tok-2", APIKey: "4711"}
	if diff := cmp.Diff(want, second); diff != "" {
		t.Errorf("second GET mismatch (-want +got):\n%s", diff)
	}
	if first.Token == second.Token {
		t.Error("token was reused")
	}

	var rooms roomsResponse
	for _, target := range []string{"/session/", "/session"} {
		if code := ts.do(t, "GET", target, "", &rooms); code != http.StatusOK {
			t.Fatalf("GET %s status = %d", target, code)
		}
		if diff := cmp.Diff([]string{"alice-standup"}, rooms.Rooms); diff != "" {
			t.Errorf("GET %s mismatch (-want +got):\n%s", target, diff)
		}
	}
}

func TestListRoomsEmpty(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/session/", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"rooms":[]}` {
		t.Errorf("GET /session/ = %s, want empty list", got)
	}
}

func TestArchiveRoutes(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.rooms.SetSession(context.Background(), "alice-standup", "sess-1", nil); err != nil {
		t.Fatal(err)
	}

	ts.video.EXPECT().StartArchive(gomock.Any(), "alice-standup", "sess-1").
		Return(&provider.Archive{ID: "arch-1", Group: provider.ArchivePending, Status: "started"}, nil)
	ts.video.EXPECT().StopArchive(gomock.Any(), "arch-1").Return("arch-1", nil)
	ts.video.EXPECT().ListArchives(gomock.Any(), "sess-1").
		Return([]provider.Archive{{ID: "arch-1", SessionID: "sess-1", Group: provider.ArchivePending, Status: "uploading"}}, nil).Times(2)

	var started archiveIDResponse
	if code := ts.do(t, "POST", "/session/alice-standup/startArchive", "", &started); code != http.StatusOK {
		t.Fatalf("startArchive status = %d", code)
	}
	if diff := cmp.Diff(archiveIDResponse{ArchiveID: "arch-1", Status: 200}, started); diff != "" {
		t.Errorf("startArchive mismatch (-want +got):\n%s", diff)
	}

	var stopped archiveIDResponse
	if code := ts.do(t, "POST", "/session/alice-standup/arch-1/stopArchive", "", &stopped); code != http.StatusOK {
		t.Fatalf("stopArchive status = %d", code)
	}
	if stopped.ArchiveID != "arch-1" || stopped.Status != 200 {
		t.Errorf("stopArchive = %+v", stopped)
	}

	var list archivesResponse
	if code := ts.do(t, "GET", "/session/alice-standup/archives", "", &list); code != http.StatusOK {
		t.Fatalf("archives status = %d", code)
	}
	if len(list.Archives) != 1 || list.Archives[0].Group != provider.ArchivePending || list.Status != 200 {
		t.Errorf("archives = %+v", list)
	}

	var state stateResponse
	if code := ts.do(t, "GET", "/session/alice-standup/state", "", &state); code != http.StatusOK {
		t.Fatalf("state status = %d", code)
	}
	if state.State != coordinator.StateProvisioned || state.Room != "alice-standup" {
		t.Errorf("state = %+v", state)
	}
}

func TestUnknownRoom(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct{ method, target string }{
		{"POST", "/session/nobody/startArchive"},
		{"GET", "/session/nobody/archives"},
	} {
		var resp errorResponse
		if code := ts.do(t, tc.method, tc.target, "", &resp); code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.target, code)
		}
		if resp.Message != "Room not found" {
			t.Errorf("%s %s message = %q", tc.method, tc.target, resp.Message)
		}
	}

	var state stateResponse
	if code := ts.do(t, "GET", "/session/nobody/state", "", &state); code != http.StatusOK || state.State != coordinator.StateUnknown {
		t.Errorf("state = %d %+v", code, state)
	}
}

func TestProviderErrors(t *testing.T) {
	ts := newTestServer(t)

	ts.video.EXPECT().StopArchive(gomock.Any(), "gone").
		Return("", &provider.Error{Provider: provider.KindOpenTok, Op: "stopArchive", Status: 404, Message: "Archive not found"})
	ts.video.EXPECT().StopArchive(gomock.Any(), "busy").
		Return("", &provider.Error{Provider: provider.KindOpenTok, Op: "stopArchive", Status: 409, Message: "Archive is not started"})
	ts.video.EXPECT().StopArchive(gomock.Any(), "slow").
		Return("", &provider.Error{Provider: provider.KindOpenTok, Op: "stopArchive", Err: provider.ErrTimeout})
	ts.video.EXPECT().GetCredentials(gomock.Any()).
		Return(nil, &provider.Error{Provider: provider.KindVonage, Op: "createSession", Status: 401, Message: "Invalid credentials"})

	cases := []struct {
		method, target string
		code           int
		message        string
	}{
		{"POST", "/session/room/gone/stopArchive", http.StatusNotFound, "opentok stopArchive: 404 Archive not found"},
		{"POST", "/session/room/busy/stopArchive", http.StatusInternalServerError, "opentok stopArchive: 409 Archive is not started"},
		{"POST", "/session/room/slow/stopArchive", http.StatusGatewayTimeout, "Video service did not respond in time"},
		{"GET", "/session/new-room", http.StatusInternalServerError, "vonage createSession: 401 Invalid credentials"},
	}
	for _, tc := range cases {
		var resp errorResponse
		if code := ts.do(t, tc.method, tc.target, "", &resp); code != tc.code {
			t.Errorf("%s %s status = %d, want %d", tc.method, tc.target, code, tc.code)
		}
		if resp.Message != tc.message {
			t.Errorf("%s %s message = %q, want %q", tc.method, tc.target, resp.Message, tc.message)
		}
	}

	if rooms, _ := ts.rooms.ListRooms(context.Background()); len(rooms) != 0 {
		t.Errorf("rooms = %v after failed provisioning", rooms)
	}
}

func TestMalformedRequests(t *testing.T) {
	ts := newTestServer(t)

	var resp errorResponse
	if code := ts.do(t, "GET", "/session/a%2Fb", "", &resp); code != http.StatusBadRequest {
		t.Errorf("GET with slash in room name status = %d, want 400", code)
	}
	if code := ts.do(t, "POST", "/session/embed-1", `{"roomName":`, &resp); code != http.StatusBadRequest {
		t.Errorf("POST with bad JSON status = %d, want 400", code)
	}
	if code := ts.do(t, "POST", "/session/embed-1", `{"width":true}`, &resp); code != http.StatusBadRequest {
		t.Errorf("POST with bad width status = %d, want 400", code)
	}
}

func TestCreateEmbedRoom(t *testing.T) {
	ts := newTestServer(t)
	ts.video.EXPECT().GetCredentials(gomock.Any()).
		Return(&provider.Credential{SessionID: "sess-e", Token: "tok-e", APIKey: "app"}, nil)

	var cred provider.Credential
	body := `{"roomName":"townhall","url":"https://example.com/townhall","width":640,"height":"480"}`
	if code := ts.do(t, "POST", "/session/embed-1", body, &cred); code != http.StatusOK {
		t.Fatalf("POST status = %d", code)
	}
	if cred.SessionID != "sess-e" || cred.Token != "tok-e" || cred.APIKey != "app" {
		t.Errorf("POST = %+v", cred)
	}

	room, err := ts.rooms.GetRoom(context.Background(), "embed-1")
	if err != nil || room == nil {
		t.Fatalf("GetRoom() = %v, %v", room, err)
	}
	want := &types.EmbedProps{Room: "townhall", URL: "https://example.com/townhall", Width: "640", Height: "480"}
	if diff := cmp.Diff(want, room.Embed); diff != "" {
		t.Errorf("embed mismatch (-want +got):\n%s", diff)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest("GET", "/_/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestArchiveStatusOnWire(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.rooms.SetSession(context.Background(), "alice-standup", "sess-1", nil); err != nil {
		t.Fatal(err)
	}
	ts.video.EXPECT().ListArchives(gomock.Any(), "sess-1").Return([]provider.Archive{
		{ID: "arch-2", SessionID: "sess-1", Status: "started", Group: provider.ArchivePending},
		{ID: "arch-1", SessionID: "sess-1", Status: "available", Group: provider.ArchiveAvailable},
	}, nil)

	// The web client groups the raw status itself.
	var list struct {
		Archives []map[string]interface{} `json:"archives"`
	}
	if code := ts.do(t, "GET", "/session/alice-standup/archives", "", &list); code != http.StatusOK {
		t.Fatalf("archives status = %d", code)
	}
	if len(list.Archives) != 2 {
		t.Fatalf("archives = %+v", list.Archives)
	}
	for i, want := range []struct{ status, group string }{{"started", "pending"}, {"available", "available"}} {
		if got := list.Archives[i]["status"]; got != want.status {
			t.Errorf("archives[%d].status = %v, want %q", i, got, want.status)
		}
		if got := list.Archives[i]["statusGroup"]; got != want.group {
			t.Errorf("archives[%d].statusGroup = %v, want %q", i, got, want.group)
		}
	}
}

func TestRequestTooLarge(t *testing.T) {
	ts := newTestServer(t)

	body := `{"roomName":"` + strings.Repeat("x", maxRequestBody) + `"}`
	var resp errorResponse
	if code := ts.do(t, "POST", "/session/embed-1", body, &resp); code != http.StatusRequestEntityTooLarge {
		t.Errorf("POST with oversized body status = %d, want 413", code)
	}
	if resp.Message == "" {
		t.Error("no message in the error response")
	}
	if rooms, _ := ts.rooms.ListRooms(context.Background()); len(rooms) != 0 {
		t.Errorf("rooms = %v after rejected request", rooms)
	}
}

func TestPanicRecovery(t *testing.T) {
	h := wrapHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/session/alice-standup", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Message != "Internal error" {
		t.Errorf("body = %q, %v", rec.Body.String(), err)
	}
}
