// Package capture runs the always-on capture pipeline (spec 4.3): one
// tick per period, sampling the foreground app, media, location and
// monitor frames, deduplicating frames via perceptual hashing, and
// feeding the results to the Event Tracker and Storage.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracehq/trace/internal/errs"
	"github.com/tracehq/trace/internal/platform"
	"github.com/tracehq/trace/internal/tracelog"
	"github.com/tracehq/trace/internal/types"
)

// BlocklistChecker is the capability the pipeline needs from the
// blocklist store: does this app or domain match a blocking entry, and
// does the match suppress screenshots, events, or both.
type BlocklistChecker interface {
	MatchApp(appID string) (blockScreenshots, blockEvents, matched bool)
	MatchDomain(domain string) (blockScreenshots, blockEvents, matched bool)
}

// Store is the capability the pipeline needs from storage.
type Store interface {
	SaveScreenshot(ctx context.Context, s *types.Screenshot, blob []byte) error
	SaveEvent(ctx context.Context, e *types.Event) error
}

// Blobs saves and loads screenshot image bytes under the configured
// blob root, keyed by the screenshot's relative Path.
type Blobs interface {
	Write(relPath string, data []byte) error
}

// Config parameterizes one pipeline run.
type Config struct {
	TickPeriod       time.Duration // default 1s
	Monitors         []int
	DedupThreshold   int           // default 5
	LocationInterval time.Duration // default 15m
	JPEGQuality      int           // default 85
}

// DefaultConfig matches the defaults named in spec 4.3.
func DefaultConfig() Config {
	return Config{
		TickPeriod:       time.Second,
		Monitors:         []int{0},
		DedupThreshold:   5,
		LocationInterval: 15 * time.Minute,
		JPEGQuality:      85,
	}
}

// TickSummary is handed to any registered callback after each tick
// (spec 4.3 step 8).
type TickSummary struct {
	At          time.Time
	Outcome     TickOutcome
	FramesKept  int
	FramesDedup int
}

// Pipeline is the capture worker. It owns one EventTracker and one
// last-accepted-hash table per monitor.
type Pipeline struct {
	cfg       Config
	probe     platform.Probe
	blocklist BlocklistChecker
	store     Store
	blobs     Blobs
	tracker   *EventTracker
	log       *TickLog

	mu           sync.Mutex
	lastHash     map[int]uint64
	lastLocation *platform.LocationInfo
	lastLocAt    time.Time

	callbacks []func(TickSummary)

	stopChan chan struct{}
	running  bool
}

// New builds a Pipeline. Screenshots persisted via store/blobs are
// linked to whatever event is open in tracker at capture time.
func New(cfg Config, probe platform.Probe, blocklist BlocklistChecker, store Store, blobs Blobs, tickLog *TickLog) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		probe:     probe,
		blocklist: blocklist,
		store:     store,
		blobs:     blobs,
		log:       tickLog,
		lastHash:  make(map[int]uint64),
		stopChan:  make(chan struct{}),
	}
	p.tracker = NewEventTracker(func(e *types.Event) {
		if err := p.store.SaveEvent(context.Background(), e); err != nil {
			tracelog.Warn("capture", "save event failed: %v", err)
		}
	})
	return p
}

// OnTick registers a callback invoked after every tick with a summary.
func (p *Pipeline) OnTick(cb func(TickSummary)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// Start begins the ticker loop on a background goroutine, grounded on
// the pack's Start/Stop/ticker-select shape used for every background
// worker in this system.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	go p.loop()
	tracelog.Info("capture", "pipeline started (tick=%v, monitors=%v)", p.cfg.TickPeriod, p.cfg.Monitors)
}

// Stop halts the loop and persists any open event.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopChan)
	p.running = false
	p.mu.Unlock()

	p.tracker.Shutdown(time.Now())
}

func (p *Pipeline) loop() {
	ticker := time.NewTicker(p.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case now := <-ticker.C:
			start := time.Now()
			p.tick(now)
			// absorb only the remaining slice of the tick period, so a
			// slow tick doesn't drift the wall clock (spec 4.3 latency budget).
			elapsed := time.Since(start)
			if elapsed < p.cfg.TickPeriod {
				time.Sleep(p.cfg.TickPeriod - elapsed)
			}
		}
	}
}

func (p *Pipeline) tick(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TickPeriod)
	defer cancel()

	summary := TickSummary{At: now}

	fg, err := p.probe.Foreground(ctx)
	if err != nil {
		summary.Outcome = TickError
		p.finishTick(summary, err)
		return
	}

	var url, pageTitle string
	if fg.IsBrowser {
		url, pageTitle, _, _ = p.probe.BrowserURL(ctx, fg.AppID)
	}

	blockScreens, blockEvents := p.checkBlocklist(fg.AppID, url)
	if blockEvents {
		// spec 4.3 step 3: skip steps 4-7 (no now-playing, location,
		// frames, or URL), still advance the event tracker's time. The
		// blocked summary is still handed to the tick log and callbacks.
		p.tracker.Feed(Tick{At: now, Foreground: fg})
		summary.Outcome = TickBlocked
		p.finishTick(summary, nil)
		return
	}

	nowPlayingJSON := p.sampleNowPlaying(ctx)
	locationText := p.sampleLocation(ctx, now)

	p.tracker.Feed(Tick{
		At:             now,
		Foreground:     fg,
		URL:            url,
		PageTitle:      pageTitle,
		NowPlayingJSON: nowPlayingJSON,
		LocationText:   locationText,
	})

	if blockScreens {
		summary.Outcome = TickBlocked
		p.finishTick(summary, nil)
		return
	}

	kept, dedup := p.sampleFrames(ctx, now)
	summary.FramesKept = kept
	summary.FramesDedup = dedup
	summary.Outcome = TickCaptured
	if kept == 0 && dedup > 0 {
		summary.Outcome = TickDedup
	}
	p.finishTick(summary, nil)
}

// checkBlocklist reports whether the current app/domain match blocks
// screenshots and/or events, per the blocklist entry's own flags.
func (p *Pipeline) checkBlocklist(appID, url string) (blockScreens, blockEvents bool) {
	if p.blocklist == nil {
		return false, false
	}
	if bs, be, matched := p.blocklist.MatchApp(appID); matched {
		blockScreens, blockEvents = blockScreens || bs, blockEvents || be
	}
	if url != "" {
		if bs, be, matched := p.blocklist.MatchDomain(domainOf(url)); matched {
			blockScreens, blockEvents = blockScreens || bs, blockEvents || be
		}
	}
	return blockScreens, blockEvents
}

func (p *Pipeline) sampleNowPlaying(ctx context.Context) string {
	media, err := p.probe.NowPlaying(ctx)
	if err != nil || media == nil {
		return ""
	}
	return fmt.Sprintf(`{"artist":%q,"track":%q,"album":%q}`, media.Artist, media.Track, media.Album)
}

func (p *Pipeline) sampleLocation(ctx context.Context, now time.Time) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastLocation != nil && now.Sub(p.lastLocAt) < p.cfg.LocationInterval {
		return p.lastLocation.Text
	}

	loc, err := p.probe.Location(ctx, p.cfg.LocationInterval)
	if err != nil || loc == nil {
		if p.lastLocation != nil {
			return p.lastLocation.Text
		}
		return ""
	}
	p.lastLocation = loc
	p.lastLocAt = now
	return loc.Text
}

// sampleFrames implements spec 4.3 steps 6-7: sample, hash, dedup,
// downscale+encode+persist accepted frames.
func (p *Pipeline) sampleFrames(ctx context.Context, now time.Time) (kept, deduped int) {
	frames, err := p.probe.SampleFrames(ctx, p.cfg.Monitors)
	if err != nil {
		return 0, 0
	}

	for _, frame := range frames {
		hash := DHash(frame.Image)

		p.mu.Lock()
		last, seen := p.lastHash[frame.MonitorID]
		p.lastHash[frame.MonitorID] = hash // updated even for duplicates (spec 4.3 step 7)
		p.mu.Unlock()

		distance := 0
		if seen {
			distance = Hamming(last, hash)
		}
		diffScore := NormalizedDiff(distance)

		if seen && distance <= p.cfg.DedupThreshold {
			deduped++
			continue
		}

		scaled := Downscale(frame.Image)
		encoded, err := EncodeJPEG(scaled, p.cfg.JPEGQuality)
		if err != nil {
			tracelog.Warn("capture", "jpeg encode failed: %v", err)
			continue
		}

		id := uuid.NewString()
		relPath := fmt.Sprintf("%s/%04d/%02d/%02d/%s.jpg", "screenshots", now.Year(), now.Month(), now.Day(), id)
		shot := &types.Screenshot{
			ID:          id,
			Timestamp:   now,
			MonitorID:   frame.MonitorID,
			Path:        relPath,
			Fingerprint: fmt.Sprintf("%016x", hash),
			DiffScore:   diffScore,
			Width:       frame.Width,
			Height:      frame.Height,
		}

		if err := p.blobs.Write(relPath, encoded); err != nil {
			tracelog.Warn("capture", "blob write failed: %v", err)
			continue
		}
		if err := errs.Retry(ctx, errs.DefaultStorageRetry, func() error {
			return p.store.SaveScreenshot(ctx, shot, encoded)
		}); err != nil {
			tracelog.Warn("capture", "save screenshot failed: %v", err)
			continue
		}

		p.tracker.AddEvidence(id)
		kept++
	}

	return kept, deduped
}

func (p *Pipeline) finishTick(summary TickSummary, tickErr error) {
	if p.log != nil {
		entry := TickEntry{
			Timestamp:   summary.At,
			Outcome:     summary.Outcome,
			FramesKept:  summary.FramesKept,
			FramesDedup: summary.FramesDedup,
		}
		if tickErr != nil {
			entry.Error = tickErr.Error()
		}
		if err := p.log.Append(entry); err != nil {
			tracelog.Warn("capture", "tick log append failed: %v", err)
		}
	}

	p.mu.Lock()
	callbacks := append([]func(TickSummary){}, p.callbacks...)
	p.mu.Unlock()
	for _, cb := range callbacks {
		cb(summary)
	}
}

func domainOf(rawURL string) string {
	s := rawURL
	for _, prefix := range []string{"https://", "http://"} {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			s = s[len(prefix):]
			break
		}
	}
	for i, r := range s {
		if r == '/' || r == ':' || r == '?' {
			return s[:i]
		}
	}
	return s
}
