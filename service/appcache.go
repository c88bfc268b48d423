package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"homecontrol/metrics"
	"homecontrol/models"
)

// ScanFunc performs a device app-inventory scan.
type ScanFunc func(ctx context.Context) ([]models.AppEntry, error)

// AppCache memoizes per-device app inventories. Entries expire after a TTL,
// refreshes are single-flight per device, and an optional sqlite store
// carries inventories across restarts.
type AppCache struct {
	log     zerolog.Logger
	ttl     time.Duration
	db      *sql.DB // nil disables persistence
	metrics *metrics.Metrics
	group   singleflight.Group
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]models.AppInventory
}

func NewAppCache(ttl time.Duration, db *sql.DB, m *metrics.Metrics, log zerolog.Logger) *AppCache {
	c := &AppCache{
		log:     log.With().Str("component", "appcache").Logger(),
		ttl:     ttl,
		db:      db,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]models.AppInventory),
	}
	if db != nil {
		if err := c.loadPersisted(); err != nil {
			c.log.Warn().Err(err).Msg("could not load persisted app inventory")
		}
	}
	return c
}

// Apps returns the cached inventory when fresh, otherwise scans the device.
// Concurrent callers for the same device share one scan.
func (c *AppCache) Apps(ctx context.Context, deviceID string, force bool, scan ScanFunc) ([]models.AppEntry, error) {
	if !force {
		c.mu.RLock()
		entry, ok := c.entries[deviceID]
		c.mu.RUnlock()
		if ok && c.now().Sub(entry.Captured) < c.ttl {
			c.metrics.ObserveAppCache(true)
			return entry.Apps, nil
		}
	}
	c.metrics.ObserveAppCache(false)

	v, err, shared := c.group.Do(deviceID, func() (interface{}, error) {
		apps, err := scan(ctx)
		if err != nil {
			return nil, err
		}
		c.metrics.ObserveAppScan(deviceID)
		inv := models.AppInventory{DeviceID: deviceID, Apps: apps, Captured: c.now()}
		c.mu.Lock()
		c.entries[deviceID] = inv
		c.mu.Unlock()
		c.persist(inv)
		return apps, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug().Str("device", deviceID).Msg("scan shared with concurrent caller")
	}
	return v.([]models.AppEntry), nil
}

// Invalidate drops a device's cached inventory.
func (c *AppCache) Invalidate(deviceID string) {
	c.mu.Lock()
	delete(c.entries, deviceID)
	c.mu.Unlock()
}

func (c *AppCache) persist(inv models.AppInventory) {
	if c.db == nil {
		return
	}
	tx, err := c.db.Begin()
	if err != nil {
		c.log.Warn().Err(err).Msg("app inventory persist failed")
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM app_inventory WHERE device_id = ?`, inv.DeviceID); err != nil {
		c.log.Warn().Err(err).Msg("app inventory persist failed")
		return
	}
	for _, app := range inv.Apps {
		if _, err := tx.Exec(
			`INSERT INTO app_inventory (device_id, package, name, icon, color, captured_at) VALUES (?, ?, ?, ?, ?, ?)`,
			inv.DeviceID, app.Package, app.Name, app.Icon, app.Color, inv.Captured.Unix(),
		); err != nil {
			c.log.Warn().Err(err).Msg("app inventory persist failed")
			return
		}
	}
	if err := tx.Commit(); err != nil {
		c.log.Warn().Err(err).Msg("app inventory persist failed")
	}
}

// loadPersisted warms the in-memory cache from sqlite. Stale rows load too;
// the TTL check at read time handles them the same as expired memory
// entries.
func (c *AppCache) loadPersisted() error {
	rows, err := c.db.Query(
		`SELECT device_id, package, name, icon, color, captured_at FROM app_inventory ORDER BY device_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := make(map[string]models.AppInventory)
	for rows.Next() {
		var deviceID, pkg, name, icon, color string
		var captured int64
		if err := rows.Scan(&deviceID, &pkg, &name, &icon, &color, &captured); err != nil {
			return err
		}
		inv := loaded[deviceID]
		inv.DeviceID = deviceID
		inv.Captured = time.Unix(captured, 0)
		inv.Apps = append(inv.Apps, models.AppEntry{Package: pkg, Name: name, Icon: icon, Color: color})
		loaded[deviceID] = inv
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	for id, inv := range loaded {
		c.entries[id] = inv
	}
	c.mu.Unlock()
	if len(loaded) > 0 {
		c.log.Info().Int("devices", len(loaded)).Msg("app inventory restored from disk")
	}
	return nil
}
