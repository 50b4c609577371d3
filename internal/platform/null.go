package platform

import (
	"context"
	"time"
)

// NullProbe is a Probe that reports everything unavailable. It lets
// traced start on a platform with no capture backend wired in yet, or
// run with capture effectively disabled for testing.
type NullProbe struct{}

func (NullProbe) SampleFrames(ctx context.Context, monitors []int) ([]RawFrame, error) {
	return nil, &ErrUnavailable{Capability: "sample_frames", Reason: "no probe configured"}
}

func (NullProbe) Foreground(ctx context.Context) (ForegroundInfo, error) {
	return ForegroundInfo{}, &ErrUnavailable{Capability: "foreground", Reason: "no probe configured"}
}

func (NullProbe) BrowserURL(ctx context.Context, bundleID string) (string, string, bool, error) {
	return "", "", false, nil
}

func (NullProbe) NowPlaying(ctx context.Context) (*MediaInfo, error) {
	return nil, nil
}

func (NullProbe) Location(ctx context.Context, minInterval time.Duration) (*LocationInfo, error) {
	return nil, nil
}

func (NullProbe) Permissions(ctx context.Context) (PermissionReport, error) {
	return PermissionReport{Missing: []string{"screen_recording", "accessibility", "location"}}, nil
}

func (NullProbe) SleepWakeEvents(ctx context.Context) ([]SleepWakeEvent, error) {
	return nil, nil
}

// RecordedProbe is a scripted test double: each call pops the next
// queued response so tests can drive specific tick sequences.
type RecordedProbe struct {
	Foregrounds []ForegroundInfo
	Frames      [][]RawFrame
	NowPlayings []*MediaInfo
	Locations   []*LocationInfo

	fgIdx, frameIdx, npIdx, locIdx int
}

func (p *RecordedProbe) SampleFrames(ctx context.Context, monitors []int) ([]RawFrame, error) {
	if p.frameIdx >= len(p.Frames) {
		return nil, nil
	}
	f := p.Frames[p.frameIdx]
	p.frameIdx++
	return f, nil
}

func (p *RecordedProbe) Foreground(ctx context.Context) (ForegroundInfo, error) {
	if p.fgIdx >= len(p.Foregrounds) {
		return ForegroundInfo{}, &ErrUnavailable{Capability: "foreground", Reason: "recording exhausted"}
	}
	fg := p.Foregrounds[p.fgIdx]
	p.fgIdx++
	return fg, nil
}

func (p *RecordedProbe) BrowserURL(ctx context.Context, bundleID string) (string, string, bool, error) {
	return "", "", false, nil
}

func (p *RecordedProbe) NowPlaying(ctx context.Context) (*MediaInfo, error) {
	if p.npIdx >= len(p.NowPlayings) {
		return nil, nil
	}
	np := p.NowPlayings[p.npIdx]
	p.npIdx++
	return np, nil
}

func (p *RecordedProbe) Location(ctx context.Context, minInterval time.Duration) (*LocationInfo, error) {
	if p.locIdx >= len(p.Locations) {
		return nil, nil
	}
	loc := p.Locations[p.locIdx]
	p.locIdx++
	return loc, nil
}

func (p *RecordedProbe) Permissions(ctx context.Context) (PermissionReport, error) {
	return PermissionReport{ScreenRecording: true, Accessibility: true, Location: true}, nil
}

func (p *RecordedProbe) SleepWakeEvents(ctx context.Context) ([]SleepWakeEvent, error) {
	return nil, nil
}
