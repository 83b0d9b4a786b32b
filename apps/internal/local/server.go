// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package local contains a loopback HTTP server that stands in for the message channel a
// broker shares with the application. Brokers POST their messages to it; a browser that
// finishes a broker flow is sent to it with GET and shown a completion page.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AzureAD/msal-broker-go/apps/broker"
)

// MaxMessageSize bounds the body of a posted message.
const MaxMessageSize = 1 << 20

var okPage = []byte(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Complete</title>
</head>
<body>
    <p>Authentication complete. You can return to the application. Feel free to close this browser tab.</p>
</body>
</html>
`)

// ErrClosed is returned by Next after the server stopped.
var ErrClosed = errors.New("local message channel is closed")

// Server is an HTTP server delivering posted messages as broker events.
type Server struct {
	// Addr is the address the server is listening on.
	Addr string

	s             *http.Server
	events        chan broker.Event
	done          chan struct{}
	closeOnce     sync.Once
	serveErr      chan error
	allowedOrigin string
	successPage   []byte
}

// New creates a local HTTP server and starts it. If allowedOrigin is set, posts from any
// other Origin are refused; otherwise every sender is accepted, as on a shared channel.
func New(port int, allowedOrigin string, successPage []byte) (*Server, error) {
	var l net.Listener
	var err error
	var portStr string
	if port > 0 {
		// use port provided by caller
		l, err = net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		portStr = strconv.FormatInt(int64(port), 10)
	} else {
		// find a free port
		for i := 0; i < 10; i++ {
			l, err = net.Listen("tcp", "localhost:0")
			if err != nil {
				continue
			}
			addr := l.Addr().String()
			portStr = addr[strings.LastIndex(addr, ":")+1:]
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if len(successPage) == 0 {
		successPage = okPage
	}

	serv := &Server{
		Addr:          fmt.Sprintf("http://localhost:%s", portStr),
		s:             &http.Server{Addr: "localhost:0", ReadHeaderTimeout: time.Second},
		events:        make(chan broker.Event, 16),
		done:          make(chan struct{}),
		serveErr:      make(chan error, 1),
		allowedOrigin: allowedOrigin,
		successPage:   successPage,
	}
	serv.s.Handler = http.HandlerFunc(serv.handler)

	go func() {
		if err := serv.s.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serv.serveErr <- err
		}
	}()

	return serv, nil
}

// Next returns the next posted message. ctx deadline will be honored.
func (s *Server) Next(ctx context.Context) (broker.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return broker.Event{}, ctx.Err()
	case err := <-s.serveErr:
		return broker.Event{}, err
	case <-s.done:
		return broker.Event{}, ErrClosed
	}
}

// Shutdown shuts down the server.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.s.Shutdown(context.Background())
	})
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(s.successPage)
		return
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.allowedOrigin != "" && origin != s.allowedOrigin {
		http.Error(w, fmt.Sprintf("origin %q may not post to this channel", origin), http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageSize))
	if err != nil {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}
	if origin == "" {
		origin = r.RemoteAddr
	}

	select {
	case s.events <- broker.Event{Origin: origin, Data: body}:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
	case <-s.done:
		http.Error(w, "channel closed", http.StatusServiceUnavailable)
	}
}
