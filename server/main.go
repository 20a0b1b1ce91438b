/******************************************************************************
 *
 *  Description :
 *
 *  Setup & initialization.
 *
 *****************************************************************************/

package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/prometheus/common/version"

	"github.com/vidroom/vidroom/server/coordinator"
	"github.com/vidroom/vidroom/server/logs"
	"github.com/vidroom/vidroom/server/provider"
	"github.com/vidroom/vidroom/server/store"

	// Room store adapters.
	_ "github.com/vidroom/vidroom/server/db/dynamodb"
	_ "github.com/vidroom/vidroom/server/db/firebase"
	_ "github.com/vidroom/vidroom/server/db/memory"
	_ "github.com/vidroom/vidroom/server/db/mongodb"
	_ "github.com/vidroom/vidroom/server/db/mysql"
	_ "github.com/vidroom/vidroom/server/db/postgres"
	_ "github.com/vidroom/vidroom/server/db/redis"
	_ "github.com/vidroom/vidroom/server/db/rethinkdb"
	_ "github.com/vidroom/vidroom/server/db/sqlite"

	// Video platforms.
	_ "github.com/vidroom/vidroom/server/provider/opentok"
	_ "github.com/vidroom/vidroom/server/provider/vonage"
)

const (
	// Default path for Prometheus metrics.
	defaultMetricsPath = "/metrics"
)

func main() {
	executable, _ := os.Executable()

	configfile := flag.String("config", "./vidroom.conf", "Path to config file.")
	listenOn := flag.String("listen", "", "Override address and port to listen on for HTTP(S) clients.")
	staticPath := flag.String("static_data", "", "File path to directory with the web app to serve.")
	logFlags := flag.String("log_flags", "stdFlags",
		"Comma-separated list of log flags (as defined in https://golang.org/pkg/log/#pkg-constants without the L prefix)")
	showVersion := flag.Bool("version", false, "Print version and exit.")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print("vidroom"))
		os.Exit(0)
	}

	logs.Init(os.Stderr, *logFlags)

	logs.Info.Printf("Server '%s' v%s; pid %d; %d process(es)",
		executable, version.Version, os.Getpid(), runtime.GOMAXPROCS(runtime.NumCPU()))
	logs.Info.Println("Build context", version.BuildContext())

	// Variables set in the environment take precedence over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logs.Warn.Println("Failed to read .env file:", err)
	}

	creds, err := provider.LoadCredentials(os.Getenv)
	if err != nil {
		logs.Err.Fatal("Invalid video provider configuration: ", err)
	}

	config := &configType{}
	if file, err := os.Open(*configfile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logs.Err.Fatal("Failed to read config file: ", err)
		}
		logs.Warn.Printf("Config file '%s' not found, using defaults", *configfile)
	} else {
		logs.Info.Printf("Using config from '%s'", *configfile)
		config, err = parseConfig(file)
		file.Close()
		if err != nil {
			logs.Err.Fatal(err)
		}
	}

	addr := listenAddr(*listenOn, os.Getenv(envListenPort), config.Listen)

	tlsConf, err := parseTLSConfig(config.TLS)
	if err != nil {
		logs.Err.Fatal(err)
	}

	rooms, err := store.Open(config.storeConfig())
	if err != nil {
		logs.Err.Fatal("Failed to open room store: ", err)
	}
	defer func() {
		rooms.Close()
		logs.Info.Println("Closed database connection(s)")
	}()

	if err = rooms.CheckDbVersion(); err != nil {
		logs.Err.Fatal("Room store is not ready: ", err, ". Use vidroom-db to initialize or upgrade it.")
	}
	logs.Info.Printf("Room store '%s' v%d", rooms.GetAdapterName(), rooms.GetAdapterVersion())

	video, err := provider.New(creds, config.ProviderConfig)
	if err != nil {
		logs.Err.Fatal("Failed to initialize video provider: ", err)
	}
	logs.Info.Printf("Video provider '%s'", creds.Kind())

	opts := []coordinator.Option{coordinator.WithTimeout(config.providerTimeout())}

	mux := http.NewServeMux()

	var handler http.Handler = mux
	metricsPath := config.MetricsPath
	if metricsPath == "" {
		metricsPath = defaultMetricsPath
	}
	if metricsPath != "-" {
		m := newMetrics()
		opts = append(opts, coordinator.WithObserver(m))
		m.registerDbStats(rooms.GetAdapterName(), rooms.DbStats())
		mux.Handle("GET "+metricsPath, m.handler())
		handler = m.instrument(mux)
		logs.Info.Printf("Metrics exposed at '%s'", metricsPath)
	}

	sh := &sessionHandler{coord: coordinator.New(video, rooms, opts...)}
	sh.register(mux)
	mux.HandleFunc("GET /_/health", serveHealth)

	static := *staticPath
	if static == "" {
		static = config.StaticData
	}
	if static != "" {
		logs.Info.Printf("Serving static content from '%s'", static)
	}
	mux.Handle("GET /", serveStatic(static))

	if err = listenAndServe(addr, wrapHandler(handler, config.CORSOrigins), tlsConf, signalHandler()); err != nil {
		logs.Err.Println(err)
	}
	logs.Info.Println("All done, good bye")
}
