package viewer

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/camstream/camstream/pkg/cameras"
	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/manager"
	"github.com/camstream/camstream/pkg/network/httpx"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/camstream/camstream/pkg/pipeline/pipelinetest"
	"github.com/camstream/camstream/pkg/server"
	"github.com/camstream/camstream/pkg/session"
	"github.com/pion/rtp"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %v", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDialerURL(t *testing.T) {
	d := NewDialer("cams.local:8080", "", false, logger.NewNop())
	u := d.URL("front door")
	if u.Scheme != "ws" || u.Host != "cams.local:8080" || u.Path != "/ws" {
		t.Errorf("url = %v", u.String())
	}
	q := u.Query()
	if q.Get("camera_id") != "front door" || q.Get("viewer") != d.Token() || d.Token() == "" {
		t.Errorf("query = %v", q)
	}
	if s := NewDialer("h", "/signal", true, logger.NewNop()).URL("a"); s.Scheme != "wss" || s.Path != "/signal" {
		t.Errorf("secure url = %v", s.String())
	}
	if NewDialer("h", "", false, nil).Token() == d.Token() {
		t.Error("viewer tokens should differ")
	}
}

func TestDialUnreachable(t *testing.T) {
	d := NewDialer("127.0.0.1:1", "", false, logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := d.Dial(ctx, "cam1"); err == nil {
		t.Error("expected a dial error")
	}
}

// TestHandshakeOverWebsocket runs both orchestrators with in-memory
// pipelines and real signaling between them.
func TestHandshakeOverWebsocket(t *testing.T) {
	cams := &pipelinetest.Factory{}
	srv := manager.New(session.Offerer, cams.Make, manager.WithLogger(logger.NewNop()), manager.WithMultiViewer(true))
	defer srv.Close()
	if err := srv.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	hs := httptest.NewServer(server.NewHandler(srv, logger.NewNop()).Routes(httpx.NewServeMux("")))
	defer hs.Close()
	u, _ := url.Parse(hs.URL)

	views := &pipelinetest.Factory{}
	d := NewDialer(u.Host, "", false, logger.NewNop())
	cli := manager.New(session.Answerer, views.Make, manager.WithDialer(d.Dial), manager.WithLogger(logger.NewNop()))
	defer cli.Close()
	if err := cli.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	if err := cli.AddCamera("cam9", nil); err != nil {
		t.Fatal(err)
	}
	if err := cli.ConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	// cam1 reaches negotiation on both sides
	waitFor(t, "server negotiation", func() bool {
		l := srv.Sessions()
		return len(l) == 1 && l[0].State == session.Negotiating
	})
	waitFor(t, "viewer negotiation", func() bool { return cli.Status()["cam1"].State == session.Negotiating })

	camPeer, viewPeer := cams.Adapter("cam1").LastPeer(), views.Adapter("cam1").LastPeer()
	if ops := viewPeer.Ops(); len(ops) < 2 || ops[0] != "remote offer offer-cam1" || ops[1] != "create-answer" {
		t.Errorf("viewer peer calls = %v", ops)
	}
	if ops := camPeer.Ops(); len(ops) < 2 || ops[1] != "remote answer answer-cam1" {
		t.Errorf("camera peer calls = %v", ops)
	}

	// candidates are trickled to the other side
	idx, mid := uint16(0), "0"
	camPeer.Emit(pipeline.LocalCandidate{Candidate: pipeline.Candidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMLineIndex: &idx, SDPMid: &mid}})
	waitFor(t, "remote candidate", func() bool {
		for _, op := range viewPeer.Ops() {
			if op == "candidate candidate:1 1 udp 1 10.0.0.1 5000 typ host" {
				return true
			}
		}
		return false
	})

	camPeer.Emit(pipeline.StateChanged{State: pipeline.StateConnected})
	viewPeer.Emit(pipeline.StateChanged{State: pipeline.StateConnected})
	waitFor(t, "connection", func() bool {
		return srv.Summary().Connected == 1 && cli.Summary().Connected == 1
	})

	// the unknown camera is refused by the server
	select {
	case err := <-cli.Errors():
		var ae *session.AdapterUnavailableError
		if !errors.As(err, &ae) || ae.CameraId != "cam9" {
			t.Errorf("expected cam9 to be unavailable, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("cam9 is not reported")
	}

	cli.DisconnectAll()
	waitFor(t, "server cleanup", func() bool { return srv.Summary().TotalSessions == 0 })
}

type stream struct {
	mime    string
	mu      sync.Mutex
	packets []*rtp.Packet
}

func (s *stream) Id() string       { return "video" }
func (s *stream) Kind() string     { return "video" }
func (s *stream) MimeType() string { return s.mime }

func (s *stream) ReadRTP() (*rtp.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func packets(n int) []*rtp.Packet {
	l := make([]*rtp.Packet, n)
	for i := range l {
		l[i] = &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}, Payload: []byte{1}}
	}
	return l
}

type writer struct {
	path    string
	packets int
	closed  bool
}

func (w *writer) WriteRTP(*rtp.Packet) error { w.packets++; return nil }
func (w *writer) Close() error               { w.closed = true; return nil }

func TestRecorder(t *testing.T) {
	tests := []struct {
		name    string
		folder  string
		mime    string
		written int
	}{
		{name: "vp8", folder: "rec", mime: "video/VP8", written: 5},
		{name: "h264", folder: "rec", mime: "video/H264"},
		{name: "off", mime: "video/VP8"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			folder := ""
			if test.folder != "" {
				folder = filepath.Join(t.TempDir(), test.folder)
			}
			r := NewRecorder(folder, logger.NewNop())
			var files []*writer
			r.open = func(path string) (rtpWriter, error) {
				w := &writer{path: path}
				files = append(files, w)
				return w, nil
			}
			r.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

			r.Consume("cam1", &stream{mime: test.mime, packets: packets(5)})
			r.Wait()

			if got := r.Packets("cam1"); got != 5 {
				t.Errorf("packets = %v", got)
			}
			if test.written == 0 {
				if len(files) != 0 {
					t.Errorf("nothing should be recorded, got %v files", len(files))
				}
				return
			}
			if len(files) != 1 || files[0].packets != test.written || !files[0].closed {
				t.Fatalf("files = %+v", files)
			}
			if want := filepath.Join(folder, "cam1-20240501-100000.ivf"); files[0].path != want {
				t.Errorf("file = %v, want %v", files[0].path, want)
			}
		})
	}
}

func TestRecorderIVF(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "rec")
	r := NewRecorder(folder, logger.NewNop())
	r.Consume("cam1", &stream{mime: "video/VP8"})
	r.Wait()
	matches, _ := filepath.Glob(filepath.Join(folder, "cam1-*.ivf"))
	if len(matches) != 1 {
		t.Errorf("expected an ivf file, got %v", matches)
	}
	if r.Packets("cam2") != 0 {
		t.Error("unknown camera has packets")
	}
}

func TestWatchList(t *testing.T) {
	conf := config.ViewerConfig{}
	conf.Cameras.List = []config.Camera{{Id: "a", Enabled: true}}
	src, _ := watchList(conf)
	if l, _ := src.List(context.Background()); len(l) != 1 || l[0].Id != "a" {
		t.Errorf("configured list = %+v", l)
	}

	conf.Viewer.Watch = []string{"x", "y"}
	src, interval := watchList(conf)
	l, _ := src.List(context.Background())
	if interval != 0 || len(l) != 2 || !l[1].Enabled || l[1].Id != "y" {
		t.Errorf("watched list = %+v", l)
	}
	if _, ok := src.(cameras.Static); !ok {
		t.Errorf("source = %T", src)
	}
}

func TestNoServer(t *testing.T) {
	if _, err := New(context.Background(), config.ViewerConfig{}, logger.NewNop()); !errors.Is(err, ErrNoServer) {
		t.Errorf("expected %v, got %v", ErrNoServer, err)
	}
}
