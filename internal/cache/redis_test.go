package cache

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"fairbet/internal/config"
)

func TestNew_Unreachable(t *testing.T) {
	logger := log.New(io.Discard)

	svc, err := New(config.Redis{Addr: "localhost:1"}, logger)
	if err == nil {
		svc.Close()
		t.Skip("a redis server answered on localhost:1")
	}
	if svc != nil {
		t.Errorf("New() = %v, want nil on connection failure", svc)
	}
}

func TestHealth_Down(t *testing.T) {
	svc := &service{
		client: redis.NewClient(&redis.Options{Addr: "localhost:1"}),
		logger: log.New(io.Discard),
	}
	defer svc.Close()

	stats := svc.Health()
	if stats["status"] != "down" {
		t.Errorf("Health() status = %q, want %q", stats["status"], "down")
	}
	if _, ok := stats["error"]; !ok {
		t.Error("Health() should report an error when redis is unreachable")
	}
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}
