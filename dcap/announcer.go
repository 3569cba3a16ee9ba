package dcap

import (
	"context"
	"time"
)

// DefaultDiscoverInterval matches DCAP_DISCOVER_INTERVAL_SEC's default.
const DefaultDiscoverInterval = 300 * time.Second

// Announcer broadcasts semantic_discover records for the tool catalogue:
// once at startup and then on a fixed interval. The catalogue is read
// through a function so late registrations before serve start are picked
// up without coupling dcap to the tool registry.
type Announcer struct {
	telemetry Telemetry
	catalog   func() []ToolAdvert
	connector Connector
	interval  time.Duration
}

// NewAnnouncer builds an announcer. interval <= 0 uses the default.
func NewAnnouncer(telemetry Telemetry, catalog func() []ToolAdvert, connector Connector, interval time.Duration) *Announcer {
	if interval <= 0 {
		interval = DefaultDiscoverInterval
	}
	return &Announcer{
		telemetry: telemetry,
		catalog:   catalog,
		connector: connector,
		interval:  interval,
	}
}

// AnnounceAll emits one discovery record per catalogued tool.
func (a *Announcer) AnnounceAll() {
	for _, tool := range a.catalog() {
		a.telemetry.EmitDiscovery(tool, a.connector)
	}
}

// Start announces immediately and then on every interval tick until ctx is
// cancelled.
func (a *Announcer) Start(ctx context.Context) {
	a.AnnounceAll()
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.AnnounceAll()
			}
		}
	}()
}
