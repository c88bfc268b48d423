package models

import "fmt"

// Device is a configured TV endpoint reachable over the ADB wire protocol.
// The device set is loaded once at startup and read-only afterwards.
type Device struct {
	ID   string `json:"id" yaml:"-"`
	Name string `json:"name" yaml:"name"`
	IP   string `json:"ip" yaml:"ip"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns the ip:port form ADB uses to address the device.
func (d Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// DeviceStatus pairs a configured device with its probed connection state.
type DeviceStatus struct {
	Device Device `json:"device"`
	Online bool   `json:"online"`
}
