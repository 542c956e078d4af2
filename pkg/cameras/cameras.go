// Package cameras reads the camera list from its configuration sources.
package cameras

import (
	"context"
	"fmt"
	"time"

	"github.com/camstream/camstream/pkg/config"
	"github.com/goccy/go-json"
)

// Camera is an entry of the camera configuration.
// The orchestrators only look at Id and Enabled.
type Camera struct {
	Id      string `json:"id"`
	RtspUrl string `json:"rtsp_url,omitempty"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Source returns the current camera list.
type Source interface {
	List(ctx context.Context) ([]Camera, error)
}

// Static is a fixed camera list.
type Static []Camera

func (s Static) List(context.Context) ([]Camera, error) { return append([]Camera(nil), s...), nil }

// Decode parses a JSON camera list, entries without an id are rejected.
func Decode(data []byte) ([]Camera, error) {
	var list []Camera
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("camera list: %w", err)
	}
	for i, c := range list {
		if c.Id == "" {
			return nil, fmt.Errorf("camera list: no id at %v", i)
		}
	}
	return list, nil
}

// Enabled filters out the disabled cameras.
func Enabled(list []Camera) []Camera {
	var out []Camera
	for _, c := range list {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

const sourceTimeout = 10 * time.Second

// FromConfig picks the camera list source and its poll interval.
// The file wins over the URL and the URL wins over the static list.
func FromConfig(conf config.Cameras) (Source, time.Duration) {
	switch {
	case conf.File != "":
		return NewFileSource(conf.File), 0
	case conf.Url != "":
		return NewHTTPSource(conf.Url, sourceTimeout), conf.PollInterval
	}
	list := make(Static, 0, len(conf.List))
	for _, c := range conf.List {
		list = append(list, Camera{Id: c.Id, Name: c.Name, RtspUrl: c.RtspUrl, Enabled: c.Enabled})
	}
	return list, 0
}
