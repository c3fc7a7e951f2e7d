// Package settings implements the process-wide chain-settings cache
// (spec.md §4.3): a snapshot refreshed periodically from the host state
// store, readable without ever observing a torn map.
package settings

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

// Recognized setting keys.
const (
	KeyGatewaySighash = "sawtooth.gateway.sighash"
	KeyGatewayURL      = "sawtooth.validator.gateway"
	KeyUpdate1Block    = "sawtooth.validator.update1"
	KeyV2Block         = "creditcoin.v2block"
)

// settingEntry mirrors the host's settings-family wire record: a flat list
// of (key, value) pairs stored under one state entry.
type settingEntry struct {
	Entries []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"entries"`
}

// Cache holds an immutable snapshot of chain settings, swapped atomically
// on each refresh so concurrent readers never see a partial update.
type Cache struct {
	snapshot atomic.Pointer[map[string]string]
	store    *state.Accessor
	logger   *zap.SugaredLogger
}

// NewCache returns a cache with an empty initial snapshot.
func NewCache(store *state.Accessor, logger *zap.SugaredLogger) *Cache {
	c := &Cache{store: store, logger: logger}
	empty := map[string]string{}
	c.snapshot.Store(&empty)
	return c
}

// Get returns the current value of key, or "" if unset.
func (c *Cache) Get(key string) string {
	m := c.snapshot.Load()
	if m == nil {
		return ""
	}
	return (*m)[key]
}

// GatewaySighash returns the sighash permitted to call gateway-only verbs.
func (c *Cache) GatewaySighash() string { return c.Get(KeyGatewaySighash) }

// GatewayURL returns the external attestor URL, auto-prefixed tcp://.
func (c *Cache) GatewayURL() string {
	v := c.Get(KeyGatewayURL)
	if v == "" {
		return ""
	}
	if strings.Contains(v, "://") {
		return v
	}
	return "tcp://" + v
}

// Update1Block returns the block at which the reward formula changes, or
// (0, false) if unset.
func (c *Cache) Update1Block() (uint64, bool) {
	return parseUint(c.Get(KeyUpdate1Block))
}

// V2Block returns the hard cutover block after which v1.x transactions are
// rejected, or (0, false) if unset.
func (c *Cache) V2Block() (uint64, bool) {
	return parseUint(c.Get(KeyV2Block))
}

// Seed atomically replaces the snapshot with values, bypassing the normal
// host-backed refresh. Used by tests and by the replay engine, which must
// override sawtooth.validator.update1 with its own bug-compat constant
// rather than whatever the shadow state happens to carry (spec.md §4.8).
func (c *Cache) Seed(values map[string]string) {
	next := make(map[string]string, len(values))
	for k, v := range values {
		next[k] = v
	}
	c.snapshot.Store(&next)
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Refresh reads every entry under the settings namespace and replaces the
// snapshot atomically.
func (c *Cache) Refresh() error {
	entries, err := c.store.ScanPrefix(addressing.SettingsNamespace)
	if err != nil {
		return err
	}
	next := map[string]string{}
	for _, e := range entries {
		var rec settingEntry
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		for _, kv := range rec.Entries {
			next[kv.Key] = kv.Value
		}
	}
	c.snapshot.Store(&next)
	if c.logger != nil {
		c.logger.Debugw("settings_refreshed", "count", len(next))
	}
	return nil
}

// StartRefresher launches a single background goroutine refreshing the
// cache every interval until stop is closed (spec.md §5). Safe to call once
// per process; the refresher's only cancellation path is process exit or
// the stop channel.
func (c *Cache) StartRefresher(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 6 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Refresh(); err != nil && c.logger != nil {
					c.logger.Warnw("settings_refresh_failed", "err", err)
				}
			case <-stop:
				return
			}
		}
	}()
}
