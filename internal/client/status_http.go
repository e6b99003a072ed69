package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/fxbridge/mlclient/internal/logx"
)

// StartStatusServer exposes the client's condition on /status and build
// metadata on /version. Responses are indented; the endpoints exist for an
// operator with curl, not for machines. It returns the bound address, so
// ":0" works for tests.
func StartStatusServer(ctx context.Context, addr string) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", serveJSON(func() any { return GetState() }))
	mux.HandleFunc("/version", serveJSON(func() any { return GetVersionInfo() }))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}

func serveJSON(snapshot func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snapshot())
	}
}
