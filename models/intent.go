package models

// LaunchIntent is a resolved deep-link target, produced by the resolver and
// consumed once by the orchestrator.
type LaunchIntent struct {
	// App is the canonical app key ("netflix", "youtube", ...). Empty when
	// the app could not be recognized at all.
	App string `json:"app"`
	// URI is the deep-link target. Empty for a generic launch.
	URI string `json:"uri,omitempty"`
	// Query is the normalized content query that produced the intent, kept
	// for logging and event payloads.
	Query string `json:"query,omitempty"`
	// DeepLink is false when only a generic app launch was possible.
	DeepLink bool `json:"deep_link"`
	// NeedsSelect marks apps whose deep links land on a details or search
	// page and need a select press to start playback.
	NeedsSelect bool `json:"needs_select"`
}
