package service

import (
	"sort"

	"github.com/rs/zerolog"

	"homecontrol/models"
)

// DeviceManager is the read-only registry of configured TV devices. Entries
// are created at configuration load and never mutated afterwards.
type DeviceManager struct {
	devices map[string]*models.Device
	order   []string
	log     zerolog.Logger
}

func NewDeviceManager(devices []models.Device, log zerolog.Logger) *DeviceManager {
	m := &DeviceManager{
		devices: make(map[string]*models.Device, len(devices)),
		log:     log.With().Str("component", "devices").Logger(),
	}
	for i := range devices {
		d := devices[i]
		m.devices[d.ID] = &d
		m.order = append(m.order, d.ID)
	}
	sort.Strings(m.order)
	m.log.Info().Int("count", len(m.devices)).Msg("device registry loaded")
	return m
}

// Get returns a device by id.
func (m *DeviceManager) Get(id string) (*models.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, models.ErrDeviceNotFound
	}
	return d, nil
}

// All returns every configured device in stable id order.
func (m *DeviceManager) All() []*models.Device {
	out := make([]*models.Device, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.devices[id])
	}
	return out
}
