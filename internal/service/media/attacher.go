// Package media consumes remote tracks: it drains their RTP packets, counts
// received bytes and optionally records Opus audio to Ogg files.
package media

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
	"voice-session-client/internal/service/rtvi"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// mimeTyper is implemented by sources that know their negotiated codec.
type mimeTyper interface {
	MimeType() string
}

// TrackStats summarises one attached track.
type TrackStats struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Packets   int    `json:"packets"`
	Bytes     int    `json:"bytes"`
	Recording string `json:"recording,omitempty"`
	Done      bool   `json:"done"`
}

// Attacher owns one reader goroutine per remote track.
type Attacher struct {
	outputDir string
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	tracks map[string]*TrackStats
}

// NewAttacher creates an attacher. An empty outputDir disables recording.
func NewAttacher(outputDir string, m *metrics.Metrics) *Attacher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Attacher{
		outputDir: outputDir,
		metrics:   m,
		logger:    logging.WithComponent("media"),
		tracks:    make(map[string]*TrackStats),
	}
}

// Attach starts consuming a remote track. Re-attaching a track id already
// seen is ignored.
func (a *Attacher) Attach(track rtvi.Track) error {
	a.mu.Lock()
	if _, ok := a.tracks[track.ID]; ok {
		a.mu.Unlock()
		a.logger.Debug().Str("track", track.ID).Msg("track already attached")
		return nil
	}
	stats := &TrackStats{ID: track.ID, Kind: track.Kind}
	a.tracks[track.ID] = stats
	a.mu.Unlock()

	a.metrics.RecordRemoteTrack(track.Kind)

	if track.Source == nil {
		a.logger.Info().Str("track", track.ID).Str("kind", track.Kind).Msg("track has no media source")
		a.markDone(stats)
		return nil
	}

	var writer *oggwriter.OggWriter
	if a.shouldRecord(track) {
		if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
			return errors.Wrap(err, "creating media output dir")
		}
		path := filepath.Join(a.outputDir, unsafeName.ReplaceAllString(track.ID, "_")+".ogg")
		w, err := oggwriter.New(path, opusSampleRate, opusChannels)
		if err != nil {
			return errors.Wrapf(err, "creating %s", path)
		}
		writer = w
		a.mu.Lock()
		stats.Recording = path
		a.mu.Unlock()
	}

	a.logger.Info().
		Str("track", track.ID).
		Str("kind", track.Kind).
		Bool("recording", writer != nil).
		Msg("attached remote track")

	a.wg.Add(1)
	go a.read(track, stats, writer)
	return nil
}

func (a *Attacher) shouldRecord(track rtvi.Track) bool {
	if a.outputDir == "" || track.Kind != "audio" {
		return false
	}
	if mt, ok := track.Source.(mimeTyper); ok {
		return strings.EqualFold(mt.MimeType(), webrtc.MimeTypeOpus)
	}
	return true
}

func (a *Attacher) read(track rtvi.Track, stats *TrackStats, writer *oggwriter.OggWriter) {
	defer a.wg.Done()
	defer a.markDone(stats)
	defer func() {
		if writer == nil {
			return
		}
		if err := writer.Close(); err != nil {
			a.logger.Warn().Err(err).Str("track", track.ID).Msg("closing recording")
		}
	}()

	for {
		pkt, err := track.Source.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.logger.Debug().Err(err).Str("track", track.ID).Msg("track reader stopped")
			}
			return
		}

		a.metrics.RecordMediaBytes(track.Kind, len(pkt.Payload))
		a.mu.Lock()
		stats.Packets++
		stats.Bytes += len(pkt.Payload)
		a.mu.Unlock()

		if writer != nil {
			if err := writer.WriteRTP(pkt); err != nil {
				a.logger.Warn().Err(err).Str("track", track.ID).Msg("recording write failed")
				_ = writer.Close()
				writer = nil
			}
		}
	}
}

func (a *Attacher) markDone(stats *TrackStats) {
	a.mu.Lock()
	stats.Done = true
	a.mu.Unlock()
}

// Stats returns a copy of the per-track counters ordered by track id.
func (a *Attacher) Stats() []TrackStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TrackStats, 0, len(a.tracks))
	for _, s := range a.tracks {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close waits for all readers. Readers end when their track source
// returns an error, which transports guarantee on disconnect.
func (a *Attacher) Close() {
	a.wg.Wait()
}
