package main

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vidroom/vidroom/server/coordinator"
)

func TestParseConfig(t *testing.T) {
	conf := `// Comments are allowed.
{
	"listen": ":8080",
	"cors_origins": ["https://meet.example.com"],
	"provider_timeout": 0,
	/* Video platform */
	"provider_config": {
		"archive_resolution": "1280x720",
		"token_expire_in": 3600
	},
	"store_config": {"use_adapter": "sqlite", "adapters": {"sqlite": {"path": "/tmp/rooms.db"}}}
}`
	config, err := parseConfig(strings.NewReader(conf))
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if config.Listen != ":8080" || config.ProviderConfig.Resolution() != "1280x720" ||
		config.ProviderConfig.TokenExpire() != time.Hour {
		t.Errorf("parseConfig() = %+v", config)
	}
	if diff := cmp.Diff([]string{"https://meet.example.com"}, config.CORSOrigins); diff != "" {
		t.Errorf("cors_origins mismatch (-want +got):\n%s", diff)
	}
	if config.providerTimeout() != 0 {
		t.Errorf("providerTimeout() = %v, want disabled", config.providerTimeout())
	}
	if !strings.Contains(string(config.storeConfig()), "sqlite") {
		t.Errorf("storeConfig() = %s", config.storeConfig())
	}
}

func TestParseConfigErrors(t *testing.T) {
	for _, conf := range []string{
		"{\n\t\"listen\": 8080\n}",
		"{\n\n\t\"listen\": \":80\",,\n}",
	} {
		_, err := parseConfig(strings.NewReader(conf))
		var cerr *configError
		if !errors.As(err, &cerr) {
			t.Fatalf("parseConfig(%q) error = %v, want *configError", conf, err)
		}
		if cerr.line < 2 || !strings.HasPrefix(cerr.Error(), "config at ") {
			t.Errorf("parseConfig(%q) error has no position: %v", conf, cerr)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var config configType
	if config.providerTimeout() != coordinator.DefaultTimeout {
		t.Errorf("providerTimeout() = %v", config.providerTimeout())
	}
	if string(config.storeConfig()) != string(defaultStoreConfig) {
		t.Errorf("storeConfig() = %s", config.storeConfig())
	}
	seconds := 5
	config.ProviderTimeout = &seconds
	if config.providerTimeout() != 5*time.Second {
		t.Errorf("providerTimeout() = %v", config.providerTimeout())
	}
}

func TestListenAddr(t *testing.T) {
	cases := []struct {
		flag, env, conf, want string
	}{
		{"", "", "", ":3345"},
		{"", "", "localhost:6060", "localhost:6060"},
		{"", "8080", "localhost:6060", ":8080"},
		{":9000", "8080", "localhost:6060", ":9000"},
		{"", " 0.0.0.0:80 ", "", "0.0.0.0:80"},
	}
	for _, tc := range cases {
		if got := listenAddr(tc.flag, tc.env, tc.conf); got != tc.want {
			t.Errorf("listenAddr(%q, %q, %q) = %q, want %q", tc.flag, tc.env, tc.conf, got, tc.want)
		}
	}
}

func TestServeStatic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := serveStatic(dir)
	cases := map[string]string{
		"/assets/app.js":      "console.log(1)",
		"/room/alice-standup": "<html>app</html>",
		"/":                   "<html>app</html>",
	}
	for target, want := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Errorf("GET %s = %d %q, want %q", target, rec.Code, rec.Body.String(), want)
		}
	}

	rec := httptest.NewRecorder()
	serveStatic("").ServeHTTP(rec, httptest.NewRequest("GET", "/anything", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET without static dir = %d, want 404", rec.Code)
	}
}

func TestTLSRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	tlsRedirect(":443").ServeHTTP(rec, httptest.NewRequest("GET", "http://example.com:80/session/x?a=1", nil))
	if got := rec.Header().Get("Location"); got != "https://example.com/session/x?a=1" {
		t.Errorf("Location = %q", got)
	}

	rec = httptest.NewRecorder()
	tlsRedirect("example.com:8443").ServeHTTP(rec, httptest.NewRequest("GET", "http://example.com/", nil))
	if got := rec.Header().Get("Location"); got != "https://example.com:8443/" {
		t.Errorf("Location = %q", got)
	}
}

func TestParseTLSConfig(t *testing.T) {
	if conf, err := parseTLSConfig(nil); err != nil || conf.Enabled {
		t.Errorf("parseTLSConfig(nil) = %+v, %v", conf, err)
	}
	if _, err := parseTLSConfig([]byte(`{"enabled": true}`)); err == nil {
		t.Error("TLS without certificates accepted")
	}
	conf, err := parseTLSConfig([]byte(`{"enabled": true, "strict_max_age": 604800, "autocert": {"domains": ["example.com"], "cache": "/tmp/certs"}}`))
	if err != nil || conf.Autocert == nil || conf.StrictMaxAge != 604800 {
		t.Errorf("parseTLSConfig() = %+v, %v", conf, err)
	}
}

func TestMetricsInstrument(t *testing.T) {
	m := newMetrics()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_/health", serveHealth)
	mux.Handle("GET /metrics", m.handler())
	h := m.instrument(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/_/health", nil))
	m.Event(coordinator.EventSessionCreated)
	m.ProviderCall("startArchive", time.Millisecond, errors.New("boom"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`vidroom_http_requests_total{code="200",route="GET /_/health"} 1`,
		`vidroom_events_total{event="session_created"} 1`,
		`vidroom_provider_errors_total{op="startArchive"} 1`,
		`vidroom_build_info`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output has no %q", want)
		}
	}
}

func TestMetricsDbStats(t *testing.T) {
	scrape := func(m *metrics) string {
		rec := httptest.NewRecorder()
		m.handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		return rec.Body.String()
	}

	rooms := 2
	m := newMetrics()
	m.registerDbStats("memory", func() interface{} { return map[string]int{"rooms": rooms} })
	rooms = 3
	if body := scrape(m); !strings.Contains(body, `vidroom_db_rooms{adapter="memory"} 3`) {
		t.Errorf("metrics output has no room count:\n%s", body)
	}

	m = newMetrics()
	m.registerDbStats("sqlite", func() interface{} {
		return sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3, WaitCount: 7}
	})
	body := scrape(m)
	for _, want := range []string{
		`vidroom_db_open_connections{adapter="sqlite"} 4`,
		`vidroom_db_in_use_connections{adapter="sqlite"} 1`,
		`vidroom_db_idle_connections{adapter="sqlite"} 3`,
		`vidroom_db_wait_count_total{adapter="sqlite"} 7`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output has no %q", want)
		}
	}

	// Adapters without stats export nothing.
	m = newMetrics()
	m.registerDbStats("firebase", func() interface{} { return nil })
	m.registerDbStats("closed", nil)
	if body := scrape(m); strings.Contains(body, "vidroom_db_") {
		t.Errorf("metrics output has db stats for an adapter without them")
	}
}
