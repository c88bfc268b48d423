// Package dumpsys parses the unstructured text Android devices emit for
// power, window focus, media session and audio state. The exact shape varies
// by firmware and Android version, so every extraction is best-effort:
// missing fields stay unknown, extra lines are ignored, and no input can
// make a parse fail.
package dumpsys

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"homecontrol/models"
)

// StatusShellCommand is the combined dump issued for one status read. One
// round-trip instead of four; grep on-device keeps the payload small.
const StatusShellCommand = "dumpsys power | grep -E 'mWakefulness'; " +
	"dumpsys window windows | grep -E 'mCurrentFocus|mFocusedApp'; " +
	"dumpsys media_session | grep -E 'state=PlaybackState|description='; " +
	"dumpsys audio | grep -E 'STREAM_MUSIC|muted' | head -20"

var (
	playbackStateRe = regexp.MustCompile(`state=PlaybackState\s*\{[^}]*\}`)
	stateCodeRe     = regexp.MustCompile(`state=(\d+)`)
	positionRe      = regexp.MustCompile(`position=(\d+)`)
	speedRe         = regexp.MustCompile(`speed=([0-9.]+)`)
	// The index often sits a few lines below the STREAM_MUSIC header, so the
	// match spans lines.
	volumeIndexRe = regexp.MustCompile(`(?is)STREAM_MUSIC.*?index[=:]\s*(\d+)`)
)

// ParseStatus turns one raw combined dump into a structured status. It never
// fails; the worst case is an all-unknown state.
func ParseStatus(raw string, now time.Time) models.PlaybackState {
	st := models.UnknownState(now)

	var activity string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "mWakefulness="):
			st.Power = parsePower(line)
		case strings.Contains(line, "mCurrentFocus") || strings.Contains(line, "mFocusedApp"):
			if st.App == "" {
				st.App, activity = parseFocus(line)
			}
		case strings.Contains(line, "state=PlaybackState"):
			if st.Phase == models.PhaseUnknown {
				st.Phase, st.Position = parsePlayback(line)
			}
		case strings.Contains(line, "description="):
			if st.MediaTitle == "" {
				st.MediaTitle = parseDescription(line)
			}
		}
	}

	st.Activity = activity
	st.Context = inferContext(activity)

	vol, muted := ParseVolume(raw)
	st.Volume = vol
	st.Muted = muted

	return st
}

func parsePower(line string) models.PowerState {
	switch {
	case strings.Contains(line, "Awake"):
		return models.PowerOn
	case strings.Contains(line, "Asleep"), strings.Contains(line, "Dozing"):
		return models.PowerOff
	case strings.Contains(line, "Dreaming"):
		return models.PowerScreensaver
	}
	return models.PowerUnknown
}

// parseFocus extracts package and activity from a focused-window line like
// "mCurrentFocus=Window{abc u0 com.netflix.ninja/.MainActivity}".
func parseFocus(line string) (pkg, activity string) {
	for _, part := range strings.Fields(line) {
		if !strings.Contains(part, "/") || !strings.Contains(part, ".") {
			continue
		}
		full := strings.Trim(part, "{})/")
		if idx := strings.Index(full, "/"); idx > 0 {
			return full[:idx], full[idx+1:]
		}
	}
	return "", ""
}

// Playback state codes from android.media.session.PlaybackState.
func parsePlayback(line string) (models.PlaybackPhase, int64) {
	m := playbackStateRe.FindString(line)
	if m == "" {
		m = line
	}

	phase := models.PhaseUnknown
	if c := stateCodeRe.FindStringSubmatch(m); c != nil {
		switch c[1] {
		case "3":
			phase = models.PhasePlaying
		case "2":
			phase = models.PhasePaused
		case "6":
			phase = models.PhaseBuffering
		case "1":
			phase = models.PhaseStopped
		}
	}

	var position int64
	if p := positionRe.FindStringSubmatch(m); p != nil {
		position, _ = strconv.ParseInt(p[1], 10, 64)
	}
	return phase, position
}

// PlayingAndAdvancing reports whether a media_session dump shows active
// playback, with the reported speed and position for advance checks.
func PlayingAndAdvancing(raw string) (playing bool, position int64) {
	m := playbackStateRe.FindString(raw)
	if m == "" {
		return false, 0
	}
	phase, pos := parsePlayback(m)
	if phase != models.PhasePlaying {
		return false, pos
	}
	if s := speedRe.FindStringSubmatch(m); s != nil {
		if speed, err := strconv.ParseFloat(s[1], 64); err != nil || speed <= 0 {
			return false, pos
		}
	}
	return true, pos
}

// parseDescription lifts the title out of "description=Title, null, null".
// An all-null description means no media loaded.
func parseDescription(line string) string {
	desc := line[strings.Index(line, "description=")+len("description="):]
	if idx := strings.Index(desc, ","); idx >= 0 {
		desc = desc[:idx]
	}
	desc = strings.TrimSpace(desc)
	if desc == "null" {
		return ""
	}
	return desc
}

// ParseVolume extracts the media volume and mute flag from an audio dump.
// Readings outside [0,100] clamp into range; absent readings are unknown.
func ParseVolume(raw string) (int, *bool) {
	volume := models.VolumeUnknown
	if m := volumeIndexRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			if v < 0 {
				v = 0
			}
			if v > 100 {
				v = 100
			}
			volume = v
		}
	}

	var muted *bool
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "muted=true") || strings.Contains(lower, "muted: true") {
		t := true
		muted = &t
	} else if strings.Contains(lower, "muted=false") || strings.Contains(lower, "muted: false") {
		f := false
		muted = &f
	}
	return volume, muted
}

// inferContext guesses the on-screen surface from an activity name so
// callers can tell a profile gate from a player.
func inferContext(activity string) string {
	if activity == "" {
		return ""
	}
	act := strings.ToLower(activity)
	switch {
	case strings.Contains(act, "profile"), strings.Contains(act, "who"):
		return "profile selection"
	case strings.Contains(act, "search"):
		return "search screen"
	case strings.Contains(act, "player"), strings.Contains(act, "playback"):
		return "player"
	case strings.Contains(act, "browse"), strings.Contains(act, "home"):
		return "browsing/home"
	case strings.Contains(act, "detail"):
		return "content details"
	}
	return strings.TrimSpace(strings.ReplaceAll(activity, ".", " "))
}

// ParsePackages parses `pm list packages` output into bare package ids.
func ParsePackages(raw string) []string {
	var pkgs []string
	for _, line := range strings.Split(raw, "\n") {
		pkg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "package:"))
		if pkg != "" {
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}
