package adb

// Symbolic Android key names accepted by `input keyevent`.
const (
	KeyDpadUp     = "KEYCODE_DPAD_UP"
	KeyDpadDown   = "KEYCODE_DPAD_DOWN"
	KeyDpadLeft   = "KEYCODE_DPAD_LEFT"
	KeyDpadRight  = "KEYCODE_DPAD_RIGHT"
	KeyDpadCenter = "KEYCODE_DPAD_CENTER"
	KeyBack       = "KEYCODE_BACK"
	KeyHome       = "KEYCODE_HOME"
	KeyMenu       = "KEYCODE_MENU"

	KeyVolumeUp   = "KEYCODE_VOLUME_UP"
	KeyVolumeDown = "KEYCODE_VOLUME_DOWN"
	KeyVolumeMute = "KEYCODE_VOLUME_MUTE"

	KeyWakeup = "KEYCODE_WAKEUP"
	KeySleep  = "KEYCODE_SLEEP"

	KeyMediaPlayPause = "KEYCODE_MEDIA_PLAY_PAUSE"
)

// NavigationKeys maps user-facing navigation directions to key names.
// "enter" and "ok" are accepted aliases for select.
var NavigationKeys = map[string]string{
	"up":     KeyDpadUp,
	"down":   KeyDpadDown,
	"left":   KeyDpadLeft,
	"right":  KeyDpadRight,
	"select": KeyDpadCenter,
	"enter":  KeyDpadCenter,
	"ok":     KeyDpadCenter,
	"back":   KeyBack,
	"home":   KeyHome,
	"menu":   KeyMenu,
}

// VolumeKeys maps volume actions to key names.
var VolumeKeys = map[string]string{
	"up":   KeyVolumeUp,
	"down": KeyVolumeDown,
	"mute": KeyVolumeMute,
}
