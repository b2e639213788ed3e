// Package testutil provides testing utilities for the span cache.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// TestServer provides an in-memory gRPC server for testing.
type TestServer struct {
	Listener *bufconn.Listener
	Server   *grpc.Server
}

// NewTestServer creates a new in-memory test server. Register services
// on Server before calling Start.
func NewTestServer() *TestServer {
	return &TestServer{
		Listener: bufconn.Listen(bufSize),
		Server:   grpc.NewServer(),
	}
}

// Start starts the test server in a goroutine.
func (ts *TestServer) Start() {
	go func() {
		// Serve returns once the server stops, which is expected
		// during cleanup.
		_ = ts.Server.Serve(ts.Listener)
	}()
}

// Stop stops the test server.
func (ts *TestServer) Stop() {
	ts.Server.Stop()
}

// Dial creates a client connection to the test server.
func (ts *TestServer) Dial(ctx context.Context) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ts.Listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

// DiscardLogger returns a logger that discards all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestContext returns a context with a test timeout.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
