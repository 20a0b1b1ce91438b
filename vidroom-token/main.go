// vidroom-token mints client credentials and inspects archives straight from the video
// platform, without a running server. Platform credentials are read from the environment
// (or .env) the same way the server reads them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vidroom/vidroom/server/provider"
	_ "github.com/vidroom/vidroom/server/provider/opentok"
	_ "github.com/vidroom/vidroom/server/provider/vonage"
)

func main() {
	var sessionID = flag.String("session", "", "mint a token for the existing session")
	var create = flag.Bool("new", false, "create a new session and mint a token for it")
	var archives = flag.String("archives", "", "list archives of the session")
	var expire = flag.Int("expire", 0, "token lifetime in seconds")
	var apiURL = flag.String("api_url", "", "override of the platform REST endpoint")
	var timeout = flag.Duration("timeout", 15*time.Second, "limit on the platform call")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Failed to load .env:", err)
		os.Exit(1)
	}

	if !*create && *sessionID == "" && *archives == "" {
		flag.Usage()
		os.Exit(1)
	}

	creds, err := provider.LoadCredentials(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	svc, err := provider.New(creds, provider.Options{APIURL: *apiURL, TokenExpireIn: *expire})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var code int
	switch {
	case *create:
		code = generate(ctx, os.Stdout, svc, "")
	case *sessionID != "":
		code = generate(ctx, os.Stdout, svc, *sessionID)
	default:
		code = list(ctx, os.Stdout, svc, *archives)
	}
	os.Exit(code)
}

// generate prints credentials for the session, creating one if sessionID is empty.
func generate(ctx context.Context, w io.Writer, svc provider.VideoService, sessionID string) int {
	var cred *provider.Credential
	if sessionID == "" {
		c, err := svc.GetCredentials(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to create session:", err)
			return 1
		}
		cred = c
	} else {
		tok, err := svc.GenerateToken(ctx, sessionID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to mint token:", err)
			return 1
		}
		cred = &provider.Credential{SessionID: sessionID, Token: tok.Token, APIKey: tok.APIKey}
	}
	return printJSON(w, cred)
}

// list prints archives of the session.
func list(ctx context.Context, w io.Writer, svc provider.VideoService, sessionID string) int {
	archives, err := svc.ListArchives(ctx, sessionID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to list archives:", err)
		return 1
	}
	if archives == nil {
		archives = []provider.Archive{}
	}
	return printJSON(w, archives)
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to write output:", err)
		return 1
	}
	return 0
}
