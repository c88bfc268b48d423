package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"homecontrol/models"
)

func scanReturning(count *int32, apps []models.AppEntry) ScanFunc {
	return func(ctx context.Context) ([]models.AppEntry, error) {
		atomic.AddInt32(count, 1)
		return apps, nil
	}
}

func TestAppCacheTTL(t *testing.T) {
	c := NewAppCache(time.Hour, nil, nil, zerolog.Nop())
	now := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	var scans int32
	inventory := []models.AppEntry{{Package: "com.netflix.ninja", Name: "Netflix"}}

	for i := 0; i < 3; i++ {
		apps, err := c.Apps(context.Background(), "living-room", false, scanReturning(&scans, inventory))
		if err != nil {
			t.Fatal(err)
		}
		if len(apps) != 1 {
			t.Fatalf("apps = %+v", apps)
		}
	}
	if scans != 1 {
		t.Errorf("scans = %d, want 1 inside TTL", scans)
	}

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	if _, err := c.Apps(context.Background(), "living-room", false, scanReturning(&scans, inventory)); err != nil {
		t.Fatal(err)
	}
	if scans != 2 {
		t.Errorf("scans = %d, want 2 after expiry", scans)
	}
}

func TestAppCacheForceBypassesTTL(t *testing.T) {
	c := NewAppCache(time.Hour, nil, nil, zerolog.Nop())
	var scans int32
	scan := scanReturning(&scans, nil)

	if _, err := c.Apps(context.Background(), "living-room", false, scan); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Apps(context.Background(), "living-room", true, scan); err != nil {
		t.Fatal(err)
	}
	if scans != 2 {
		t.Errorf("scans = %d, want 2 with force", scans)
	}
}

func TestAppCacheScanErrorNotCached(t *testing.T) {
	c := NewAppCache(time.Hour, nil, nil, zerolog.Nop())
	boom := errors.New("device offline")
	failing := func(ctx context.Context) ([]models.AppEntry, error) { return nil, boom }

	if _, err := c.Apps(context.Background(), "living-room", false, failing); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	// A failed scan leaves nothing behind; the next read scans again and
	// can succeed.
	var scans int32
	if _, err := c.Apps(context.Background(), "living-room", false, scanReturning(&scans, nil)); err != nil {
		t.Fatal(err)
	}
	if scans != 1 {
		t.Errorf("scans = %d", scans)
	}
}

func TestAppCacheSingleFlight(t *testing.T) {
	c := NewAppCache(time.Hour, nil, nil, zerolog.Nop())

	var scans int32
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func(ctx context.Context) ([]models.AppEntry, error) {
		if atomic.AddInt32(&scans, 1) == 1 {
			close(started)
		}
		<-release
		return nil, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Apps(context.Background(), "living-room", false, blocking)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Apps(context.Background(), "living-room", false, blocking)
	}()
	time.Sleep(50 * time.Millisecond) // let the second caller join the flight
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&scans); n != 1 {
		t.Errorf("scans = %d, want 1 shared flight", n)
	}
}

func TestAppCacheInvalidate(t *testing.T) {
	c := NewAppCache(time.Hour, nil, nil, zerolog.Nop())
	var scans int32
	scan := scanReturning(&scans, nil)

	if _, err := c.Apps(context.Background(), "living-room", false, scan); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("living-room")
	if _, err := c.Apps(context.Background(), "living-room", false, scan); err != nil {
		t.Fatal(err)
	}
	if scans != 2 {
		t.Errorf("scans = %d, want 2 after invalidate", scans)
	}
}
