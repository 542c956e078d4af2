package viewer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camstream/camstream/pkg/com"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/os"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
)

// rtpWriter stores received packets.
type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Recorder drains the received streams and counts the packets.
// With a folder set VP8 video is also saved into IVF files.
type Recorder struct {
	folder string
	counts *com.Map[string, *atomic.Uint64]
	open   func(path string) (rtpWriter, error)
	now    func() time.Time
	log    *logger.Logger
	wg     sync.WaitGroup
}

// NewRecorder makes a recorder, an empty folder disables recording.
func NewRecorder(folder string, log *logger.Logger) *Recorder {
	return &Recorder{
		folder: folder,
		counts: com.NewMap[string, *atomic.Uint64](),
		open:   openIVF,
		now:    time.Now,
		log:    log,
	}
}

func openIVF(path string) (rtpWriter, error) {
	w, err := ivfwriter.New(path)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Consume reads the stream until it ends, it is a pipeline.StreamFunc.
func (r *Recorder) Consume(cameraId string, stream pipeline.Stream) {
	log := r.log.Extend(r.log.With().Str(logger.CameraField, cameraId).Str("track", stream.Id()))
	log.Info().Msgf("Got %v stream [%v]", stream.Kind(), stream.MimeType())

	var w rtpWriter
	if r.folder != "" {
		if strings.EqualFold(stream.MimeType(), "video/vp8") {
			file, err := r.file(cameraId)
			if err != nil {
				log.Error().Err(err).Msg("Recording")
			} else {
				w = file
				log.Info().Msg("Recording")
			}
		} else {
			log.Warn().Msgf("Recording of %v is not supported", stream.MimeType())
		}
	}
	count, _ := r.counts.PutIfAbsent(cameraId, &atomic.Uint64{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		n := r.drain(stream, w, count, log)
		if w != nil {
			if err := w.Close(); err != nil {
				log.Warn().Err(err).Msg("Recording close")
			}
		}
		log.Info().Msgf("Stream has ended after %v packets", n)
	}()
}

func (r *Recorder) drain(stream pipeline.Stream, w rtpWriter, count *atomic.Uint64, log *logger.Logger) (n uint64) {
	for {
		pkt, err := stream.ReadRTP()
		if err != nil {
			return n
		}
		n++
		count.Add(1)
		if w == nil {
			continue
		}
		if err = w.WriteRTP(pkt); err != nil {
			log.Error().Err(err).Msg("Recording stopped")
			_ = w.Close()
			w = nil
		}
	}
}

func (r *Recorder) file(cameraId string) (rtpWriter, error) {
	if err := os.EnsureDir(r.folder); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s-%s.ivf", cameraId, r.now().Format("20060102-150405"))
	return r.open(filepath.Join(r.folder, name))
}

// Packets returns the number of packets received from the camera.
func (r *Recorder) Packets(cameraId string) uint64 {
	c, err := r.counts.Find(cameraId)
	if err != nil {
		return 0
	}
	return c.Load()
}

// Wait blocks until all the streams have ended.
func (r *Recorder) Wait() { r.wg.Wait() }
