package leaderboard

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ernie/isle-tracker/internal/config"
)

// closedAddr returns a loopback address with nothing listening on it
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestNewRedisIndexUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idx, err := NewRedisIndex(ctx, config.RedisConfig{Addr: closedAddr(t)})
	if err == nil {
		idx.Close()
		t.Fatal("expected an error connecting to a closed port")
	}
}
