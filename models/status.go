package models

import "time"

// PowerState is the coarse screen power reading.
type PowerState string

const (
	PowerOn          PowerState = "on"
	PowerOff         PowerState = "off"
	PowerScreensaver PowerState = "screensaver"
	PowerUnknown     PowerState = "unknown"
)

// PlaybackPhase is the coarse media session state.
type PlaybackPhase string

const (
	PhasePlaying   PlaybackPhase = "playing"
	PhasePaused    PlaybackPhase = "paused"
	PhaseBuffering PlaybackPhase = "buffering"
	PhaseStopped   PlaybackPhase = "stopped"
	PhaseUnknown   PlaybackPhase = "unknown"
)

// VolumeUnknown marks an absent volume reading.
const VolumeUnknown = -1

// PlaybackState is a structured device status derived from one raw dump.
// Each read produces a fresh value; fields the dump did not cover stay at
// their unknown defaults.
type PlaybackState struct {
	Power      PowerState    `json:"power"`
	App        string        `json:"app,omitempty"`      // foreground package
	Activity   string        `json:"activity,omitempty"` // foreground activity
	Context    string        `json:"context,omitempty"`  // human-readable screen guess
	Phase      PlaybackPhase `json:"phase"`
	MediaTitle string        `json:"media_title,omitempty"`
	Volume     int           `json:"volume"` // 0-100, VolumeUnknown if absent
	Muted      *bool         `json:"muted,omitempty"`
	Position   int64         `json:"position,omitempty"` // ms into playback, 0 if absent
	ObservedAt time.Time     `json:"observed_at"`
}

// UnknownState returns an all-unknown status, the worst-case parser output.
func UnknownState(now time.Time) PlaybackState {
	return PlaybackState{
		Power:      PowerUnknown,
		Phase:      PhaseUnknown,
		Volume:     VolumeUnknown,
		ObservedAt: now,
	}
}
