package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehq/trace/internal/platform"
	"github.com/tracehq/trace/internal/types"
)

type fakeStore struct {
	mu         sync.Mutex
	screenshots []*types.Screenshot
	events      []*types.Event
}

func (s *fakeStore) SaveScreenshot(ctx context.Context, shot *types.Screenshot, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots = append(s.screenshots, shot)
	return nil
}

func (s *fakeStore) SaveEvent(ctx context.Context, e *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

type fakeBlobs struct {
	mu     sync.Mutex
	writes map[string][]byte
}

func (b *fakeBlobs) Write(relPath string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writes == nil {
		b.writes = make(map[string][]byte)
	}
	b.writes[relPath] = data
	return nil
}

type fakeBlocklist struct {
	blockedApp string
}

func (f *fakeBlocklist) MatchApp(appID string) (bool, bool, bool) {
	if appID == f.blockedApp {
		return true, true, true
	}
	return false, false, false
}

func (f *fakeBlocklist) MatchDomain(domain string) (bool, bool, bool) {
	return false, false, false
}

func solidFrame(monitorID int, c color.Color) platform.RawFrame {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return platform.RawFrame{MonitorID: monitorID, Image: img, Width: 64, Height: 64}
}

func TestPipelineCapturesFirstFrameOfEachMonitor(t *testing.T) {
	probe := &platform.RecordedProbe{
		Foregrounds: []platform.ForegroundInfo{{AppID: "app.a", AppName: "App A", WindowTitle: "Doc"}},
		Frames:      [][]platform.RawFrame{{solidFrame(0, color.RGBA{1, 2, 3, 255})}},
	}
	store := &fakeStore{}
	blobs := &fakeBlobs{}
	p := New(DefaultConfig(), probe, nil, store, blobs, nil)

	p.tick(time.Now())

	require.Len(t, store.screenshots, 1)
	assert.Equal(t, 0, store.screenshots[0].MonitorID)
}

func TestPipelineSkipsCaptureWhenAppBlocked(t *testing.T) {
	probe := &platform.RecordedProbe{
		Foregrounds: []platform.ForegroundInfo{{AppID: "blocked.app", WindowTitle: "Secret"}},
		Frames:      [][]platform.RawFrame{{solidFrame(0, color.RGBA{1, 2, 3, 255})}},
	}
	store := &fakeStore{}
	blobs := &fakeBlobs{}
	p := New(DefaultConfig(), probe, &fakeBlocklist{blockedApp: "blocked.app"}, store, blobs, nil)

	p.tick(time.Now())

	assert.Empty(t, store.screenshots, "blocked app must not result in a captured screenshot")
}

func TestPipelineDedupsIdenticalFrame(t *testing.T) {
	frame := solidFrame(0, color.RGBA{9, 9, 9, 255})
	probe := &platform.RecordedProbe{
		Foregrounds: []platform.ForegroundInfo{
			{AppID: "app.a", WindowTitle: "Doc"},
			{AppID: "app.a", WindowTitle: "Doc"},
		},
		Frames: [][]platform.RawFrame{{frame}, {frame}},
	}
	store := &fakeStore{}
	blobs := &fakeBlobs{}
	p := New(DefaultConfig(), probe, nil, store, blobs, nil)

	now := time.Now()
	p.tick(now)
	p.tick(now.Add(time.Second))

	assert.Len(t, store.screenshots, 1, "the second identical frame must be deduplicated, not re-captured")
}
