package client

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAccessTokenRequiresKeyPair(t *testing.T) {
	_, err := FetchAccessToken(context.Background(), DefaultHost, "", "secret")
	assert.Error(t, err)
	_, err = FetchAccessToken(context.Background(), DefaultHost, "key", "")
	assert.Error(t, err)
}

func TestFetchAccessTokenHonorsContext(t *testing.T) {
	// A listener that accepts and then stays silent keeps the request
	// in flight for as long as the test needs.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FetchAccessToken(ctx, ln.Addr().String(), "key", "secret")
	assert.ErrorIs(t, err, context.Canceled)
}
