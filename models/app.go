package models

import "time"

// AppEntry is one installed streaming app in a device inventory.
type AppEntry struct {
	Package string `json:"package"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Color   string `json:"color,omitempty"`
}

// AppInventory is a per-device snapshot of installed streaming apps with the
// time it was captured, used for TTL-based freshness checks.
type AppInventory struct {
	DeviceID string     `json:"device_id"`
	Apps     []AppEntry `json:"apps"`
	Captured time.Time  `json:"captured"`
}
