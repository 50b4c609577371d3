// Package platform defines the capability surface the capture pipeline
// needs from the host OS (spec 4.2). The core never names an OS API
// directly; it talks to whatever Probe implementation is wired in at
// startup.
package platform

import (
	"context"
	"image"
	"time"
)

// RawFrame is one unprocessed monitor snapshot.
type RawFrame struct {
	MonitorID int
	Image     image.Image
	Width     int
	Height    int
}

// ForegroundInfo describes the frontmost application at tick time.
type ForegroundInfo struct {
	AppID          string
	AppName        string
	WindowTitle    string
	FocusedMonitor int
	PID            int32
	IsBrowser      bool
}

// MediaInfo is the currently playing media item, if any.
type MediaInfo struct {
	Artist string
	Track  string
	Album  string
}

// LocationInfo is a coarse, rate-limited location reading.
type LocationInfo struct {
	Text      string // e.g. "Home", "Office" — resolved by the platform, not geocoded here
	Latitude  float64
	Longitude float64
}

// PermissionReport describes which OS-level permissions are currently
// granted (screen recording, accessibility, location, etc).
type PermissionReport struct {
	ScreenRecording bool
	Accessibility   bool
	Location        bool
	Missing         []string
}

// SleepWakeEvent marks a detected system sleep or wake transition.
type SleepWakeEvent struct {
	At     time.Time
	Action string // "sleep" or "wake"
}

// Probe is the pluggable capability set the capture pipeline drives.
// Every method must be cancellable and must return within ctx's
// deadline rather than block the tick — a probe that can't answer in
// time should return ErrUnavailable, not hang.
type Probe interface {
	SampleFrames(ctx context.Context, monitors []int) ([]RawFrame, error)
	Foreground(ctx context.Context) (ForegroundInfo, error)
	BrowserURL(ctx context.Context, bundleID string) (url, title string, ok bool, err error)
	NowPlaying(ctx context.Context) (*MediaInfo, error)
	Location(ctx context.Context, minInterval time.Duration) (*LocationInfo, error)
	Permissions(ctx context.Context) (PermissionReport, error)
	SleepWakeEvents(ctx context.Context) ([]SleepWakeEvent, error)
}

// ErrUnavailable is returned by a Probe method that could not complete
// within its deadline or whose underlying OS capability is denied.
type ErrUnavailable struct {
	Capability string
	Reason     string
}

func (e *ErrUnavailable) Error() string {
	return "platform: " + e.Capability + " unavailable: " + e.Reason
}
