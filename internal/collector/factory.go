package collector

import (
	"fmt"

	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// demoPostsPerSub is the listing size served in mock mode.
const demoPostsPerSub = 25

// Clients bundles the listing collector with the gallery lookup that backs it.
type Clients struct {
	Collector domain.Collector
	Gallery   domain.GalleryLookup
}

// New selects the correct implementation based on the configured mode.
// subs seeds the mock fixture and is ignored otherwise.
func New(cfg config.RedditConfig, subs []string) (Clients, error) {
	switch cfg.Mode {
	case "api":
		api, err := NewAPIClient(cfg.ClientID, cfg.ClientSecret, cfg.Username, cfg.Password, cfg.UserAgent)
		if err != nil {
			return Clients{}, err
		}
		// Listings from the API omit media metadata, galleries come from the public endpoint.
		pub, err := NewPublicClient(cfg.BaseURL, cfg.UserAgent, cfg.Interval, cfg.Timeout)
		if err != nil {
			return Clients{}, err
		}
		return Clients{Collector: api, Gallery: pub}, nil
	case "public":
		pub, err := NewPublicClient(cfg.BaseURL, cfg.UserAgent, cfg.Interval, cfg.Timeout)
		if err != nil {
			return Clients{}, err
		}
		return Clients{Collector: pub, Gallery: pub}, nil
	case "mock":
		fc := NewFixtureClient()
		for _, sub := range subs {
			fc.Add(sub, DemoPosts(sub, demoPostsPerSub, cfg.BaseURL)...)
		}
		return Clients{Collector: fc, Gallery: fc}, nil
	default:
		return Clients{}, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", cfg.Mode)
	}
}
