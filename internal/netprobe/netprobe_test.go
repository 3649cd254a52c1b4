package netprobe_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mediafetch/fetchd/internal/netprobe"

	"github.com/stretchr/testify/require"
)

func TestDialerReachable(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	dialer := netprobe.NewDialer()
	require.True(t, dialer.Reachable(context.Background(), server.URL))
}

func TestDialerReachableClosedPort(t *testing.T) {
	t.Parallel()

	// grab a free port and close it again, nothing listens there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	dialer := netprobe.NewDialer()
	require.False(t, dialer.Reachable(context.Background(), "http://"+addr))
}

func TestDialerReachableBadURL(t *testing.T) {
	t.Parallel()
	dialer := netprobe.NewDialer()
	require.False(t, dialer.Reachable(context.Background(), "not a url"))
	require.False(t, dialer.Reachable(context.Background(), "https://"))
}
