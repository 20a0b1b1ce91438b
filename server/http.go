/******************************************************************************
 *
 *  Description :
 *
 *  Web server initialization and shutdown.
 *
 *****************************************************************************/

package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vidroom/vidroom/server/logs"
)

// How long to wait for requests in flight to complete on shutdown.
const shutdownTimeout = 10 * time.Second

type tlsConfig struct {
	// Flag enabling TLS
	Enabled bool `json:"enabled"`
	// Listen on port 80 and redirect plain HTTP to HTTPS
	RedirectHTTP string `json:"http_redirect"`
	// Enable Strict-Transport-Security by setting max_age > 0
	StrictMaxAge int `json:"strict_max_age"`
	// ACME autocert config, e.g. letsencrypt.org
	Autocert *tlsAutocertConfig `json:"autocert"`
	// If Autocert is not defined, provide file names of static certificate and key
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

type tlsAutocertConfig struct {
	// Domains to support by autocert
	Domains []string `json:"domains"`
	// Name of directory where auto-certificates are cached, e.g. /etc/letsencrypt/live/your-domain-here
	CertCache string `json:"cache"`
	// Contact email for letsencrypt
	Email string `json:"email"`
}

func parseTLSConfig(raw json.RawMessage) (*tlsConfig, error) {
	var config tlsConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &config); err != nil {
			return nil, errors.New("http: failed to parse tls config: " + err.Error() + "(" + string(raw) + ")")
		}
	}
	if !config.Enabled {
		return &config, nil
	}
	if config.Autocert == nil && (config.CertFile == "" || config.KeyFile == "") {
		return nil, errors.New("http: missing certificate or key file names")
	}
	return &config, nil
}

func listenAndServe(addr string, handler http.Handler, tlsConf *tlsConfig, stop <-chan bool) error {
	shuttingDown := false

	httpdone := make(chan bool)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if tlsConf.Enabled {
		if tlsConf.StrictMaxAge > 0 {
			server.Handler = hstsHandler(server.Handler, tlsConf.StrictMaxAge)
		}

		// If port is not specified, use default https port (443),
		// otherwise it will default to 80
		if server.Addr == "" {
			server.Addr = ":https"
		}

		server.TLSConfig = &tls.Config{}
		if tlsConf.Autocert != nil {
			certManager := autocert.Manager{
				Prompt:     autocert.AcceptTOS,
				HostPolicy: autocert.HostWhitelist(tlsConf.Autocert.Domains...),
				Cache:      autocert.DirCache(tlsConf.Autocert.CertCache),
				Email:      tlsConf.Autocert.Email,
			}

			server.TLSConfig.GetCertificate = certManager.GetCertificate
			if tlsConf.CertFile != "" || tlsConf.KeyFile != "" {
				logs.Warn.Println("HTTP server: using autocert, static cert and key files are ignored")
				tlsConf.CertFile = ""
				tlsConf.KeyFile = ""
			}
		}
	}

	go func() {
		var err error
		if tlsConf.Enabled {
			if tlsConf.RedirectHTTP != "" {
				logs.Info.Printf("Redirecting connections from HTTP at [%s] to HTTPS at [%s]",
					tlsConf.RedirectHTTP, server.Addr)
				go http.ListenAndServe(tlsConf.RedirectHTTP, tlsRedirect(server.Addr))
			}

			logs.Info.Printf("Listening for client HTTPS connections on [%s]", server.Addr)
			err = server.ListenAndServeTLS(tlsConf.CertFile, tlsConf.KeyFile)
		} else {
			logs.Info.Printf("Listening for client HTTP connections on [%s]", server.Addr)
			err = server.ListenAndServe()
		}
		if err != nil {
			if shuttingDown {
				logs.Info.Println("HTTP server: stopped")
			} else {
				logs.Err.Println("HTTP server: failed", err)
			}
		}
		httpdone <- true
	}()

	// Wait for either a termination signal or an error
	select {
	case <-stop:
		// Flip the flag that we are terminating and close the Accept-ing socket, so no new connections are possible
		shuttingDown = true
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			// failure/timeout shutting down the server gracefully
			return err
		}

		// Wait for http server to stop Accept()-ing connections
		<-httpdone

	case <-httpdone:
		return errors.New("HTTP server terminated unexpectedly")
	}
	return nil
}

// Wrap the handler with CORS, access logging, panic recovery and response compression.
func wrapHandler(h http.Handler, corsOrigins []string) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	h = handlers.CompressHandler(recoverJSON(h))
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(logs.Err), handlers.PrintRecoveryStack(true))(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
	return handlers.CombinedLoggingHandler(logs.Info.Writer(), h)
}

// recoverJSON answers a panicking request with a JSON error and logs the stack. Aborted
// requests are passed on to the server.
func recoverJSON(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logs.Err.Printf("%s %s: panic: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, &errorResponse{Message: "Internal error"})
			}
		}()
		h.ServeHTTP(w, r)
	})
}

// Wrapper for http.Handler which adds a Strict-Transport-Security to the response
func hstsHandler(handler http.Handler, maxAge int) http.Handler {
	value := "max-age=" + strconv.Itoa(maxAge)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", value)
		handler.ServeHTTP(w, r)
	})
}

// Redirect HTTP requests to HTTPS
func tlsRedirect(toPort string) http.HandlerFunc {
	// Strip hostname from toPort
	if idx := strings.LastIndex(toPort, ":"); idx > 0 {
		toPort = toPort[idx:]
	}
	if toPort == ":443" || toPort == ":https" {
		toPort = ""
	}

	return func(wrt http.ResponseWriter, req *http.Request) {
		target := "https://" + strings.Split(req.Host, ":")[0] + toPort + req.URL.Path
		if req.URL.RawQuery != "" {
			target += "?" + req.URL.RawQuery
		}
		http.Redirect(wrt, req, target, http.StatusTemporaryRedirect)
	}
}
