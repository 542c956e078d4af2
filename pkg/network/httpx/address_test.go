package httpx

import (
	"context"
	"testing"
)

func TestPublicAddress(t *testing.T) {
	tests := []struct {
		addr string
		port int
		want string
	}{
		{addr: "", want: "localhost"},
		{addr: ":0", port: 41234, want: "localhost:41234"},
		{addr: ":8080", port: 8080, want: "localhost:8080"},
		{addr: ":8080", port: 8081, want: "localhost:8081"},
		{addr: "0.0.0.0:8080", port: 8080, want: "localhost:8080"},
		{addr: "127.0.0.1:0", port: 5000, want: "127.0.0.1:5000"},
		{addr: "cam.lan:8080", port: 8081, want: "cam.lan:8081"},
		{addr: "cam.lan", port: 443, want: "cam.lan"},
		{addr: ":http", port: 80, want: "localhost"},
		{addr: "[::1]:9000", port: 9000, want: "[::1]:9000"},
	}
	for _, tt := range tests {
		if got := publicAddress(tt.addr, tt.port); got != tt.want {
			t.Errorf("publicAddress(%q, %v) = %v, want %v", tt.addr, tt.port, got, tt.want)
		}
	}
}

func TestCertManagerHostPolicy(t *testing.T) {
	m := newCertManager("cam.example.com")
	if err := m.HostPolicy(context.Background(), "cam.example.com"); err != nil {
		t.Errorf("the domain is refused: %v", err)
	}
	if err := m.HostPolicy(context.Background(), "other.example.com"); err == nil {
		t.Errorf("other hosts should be refused")
	}
}
