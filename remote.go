package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// remoteTimeout bounds calls to a running server. GET /subscribe waits on
// Graph's validation handshake, so it is generous.
const remoteTimeout = 60 * time.Second

// maxRemoteErrorBody caps how much of an error response is echoed.
const maxRemoteErrorBody = 512

// flagServer is the base URL of a running "graphsync serve".
var flagServer string

// addServerFlag registers --server on commands that talk to a running
// server.
func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagServer, "server", "",
		"base URL of a running graphsync serve (default derived from listen_addr)")
}

// serverBaseURL returns --server if set, otherwise a loopback URL for
// listenAddr. Wildcard hosts are rewritten to 127.0.0.1.
func serverBaseURL(listenAddr string) string {
	if flagServer != "" {
		return strings.TrimSuffix(flagServer, "/")
	}

	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}

	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(host, port)
}

// fetchJSON GETs url and decodes a 2xx JSON body into out.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting graphsync server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxRemoteErrorBody))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding server response: %w", err)
	}

	return nil
}
