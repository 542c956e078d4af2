package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/grandcat/zeroconf"
)

type browser struct {
	entries []*zeroconf.ServiceEntry
	err     error
}

func (b browser) Browse(ctx context.Context, _, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	if b.err != nil {
		return b.err
	}
	go func() {
		for _, e := range b.entries {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func entry(instance string, port int, ip string, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_camstream._tcp", "local.")
	e.Port = port
	if ip != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	e.Text = txt
	return e
}

var conf = config.Discovery{
	Enabled: true,
	Service: "_camstream._tcp",
	Domain:  "local.",
	Timeout: 200 * time.Millisecond,
}

func TestFind(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		entries  []*zeroconf.ServiceEntry
		want     Endpoint
		err      error
	}{
		{
			name:    "first",
			entries: []*zeroconf.ServiceEntry{entry("a", 8080, "10.0.0.2"), entry("b", 9090, "10.0.0.3")},
			want:    Endpoint{Instance: "a", Host: "10.0.0.2", Port: 8080, Path: "/ws"},
		},
		{
			name:     "by instance",
			instance: "b",
			entries:  []*zeroconf.ServiceEntry{entry("a", 8080, "10.0.0.2"), entry("b", 9090, "10.0.0.3", "path=/signal")},
			want:     Endpoint{Instance: "b", Host: "10.0.0.3", Port: 9090, Path: "/signal"},
		},
		{
			name:    "no address",
			entries: []*zeroconf.ServiceEntry{entry("a", 8080, ""), entry("c", 7070, "10.0.0.4")},
			want:    Endpoint{Instance: "c", Host: "10.0.0.4", Port: 7070, Path: "/ws"},
		},
		{name: "nothing", err: ErrNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := conf
			c.Instance = test.instance
			got, err := Find(context.Background(), c, browser{entries: test.entries})
			if !errors.Is(err, test.err) {
				t.Fatalf("expected %v, got %v", test.err, err)
			}
			if got != test.want {
				t.Errorf("expected %+v, got %+v", test.want, got)
			}
		})
	}
}

func TestFindBrowseError(t *testing.T) {
	boom := errors.New("no multicast")
	if _, err := Find(context.Background(), conf, browser{err: boom}); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestEndpointAddress(t *testing.T) {
	if got := (Endpoint{Host: "::1", Port: 8080}).Address(); got != "[::1]:8080" {
		t.Errorf("address = %v", got)
	}
}

type server struct{ down bool }

func (s *server) Shutdown() { s.down = true }

func TestAdvertiser(t *testing.T) {
	srv := &server{}
	var got []string
	a := NewAdvertiser(config.Discovery{Instance: "cs", Service: "_camstream._tcp", Domain: "local."}, 8080, "/ws", logger.NewNop())
	a.register = func(instance, service, domain string, port int, txt []string, _ []net.Interface) (Server, error) {
		got = append(got, instance, service, domain, txt[0])
		if port != 8080 {
			t.Errorf("port = %v", port)
		}
		return srv, nil
	}

	a.Run()
	a.Run()
	if len(got) != 4 || got[0] != "cs" || got[3] != "path=/ws" {
		t.Errorf("registered %v", got)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !srv.down {
		t.Error("responder is still up")
	}
}

func TestAdvertiserError(t *testing.T) {
	a := NewAdvertiser(conf, 8080, "/ws", logger.NewNop())
	a.register = func(string, string, string, int, []string, []net.Interface) (Server, error) {
		return nil, errors.New("no interfaces")
	}
	if err := a.Start(); err == nil {
		t.Error("expected an error")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Error(err)
	}
}
