// Package monitor keeps reports fresh when the catalog changes and logs a
// periodic heartbeat with the current validation picture.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mcuplan/bus"
	"mcuplan/services/catalog"
	"mcuplan/services/config"
	"mcuplan/types"
	"mcuplan/x/mathx"
)

// TopicInterval accepts a time.Duration (or seconds as a number) to retune
// the heartbeat.
var TopicInterval = bus.T("monitor", "interval")

// TopicStats answers requests with the current Stats.
var TopicStats = bus.T("monitor", "stats")

// Retuned intervals are clamped to this window.
const (
	minInterval = 10 * time.Millisecond
	maxInterval = 24 * time.Hour
)

type Revalidator interface {
	Revalidate(ctx context.Context) (int, error)
}

type Sizer interface {
	Len() int
}

// Stats is a snapshot of what the monitor has seen.
type Stats struct {
	CatalogSize   int      `json:"catalog_size"`
	Reports       int      `json:"reports"`
	Invalid       []string `json:"invalid"`
	Revalidations uint64   `json:"revalidations"`
	BusDrops      uint64   `json:"bus_drops"`
}

type Service struct {
	rv       Revalidator
	cat      Sizer
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	valid  map[string]bool // latest report validity per MCU
	revals uint64
	drops  func() uint64
}

func New(rv Revalidator, cat Sizer, interval time.Duration, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		rv:       rv,
		cat:      cat,
		interval: interval,
		log:      log.With().Str("component", "monitor").Logger(),
		valid:    map[string]bool{},
		drops:    func() uint64 { return 0 },
	}
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Reports: len(s.valid), Revalidations: s.revals, BusDrops: s.drops(), Invalid: []string{}}
	if s.cat != nil {
		st.CatalogSize = s.cat.Len()
	}
	for id, ok := range s.valid {
		if !ok {
			st.Invalid = append(st.Invalid, id)
		}
	}
	sort.Strings(st.Invalid)
	return st
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.mu.Lock()
	s.drops = conn.Bus().Drops
	s.mu.Unlock()

	catSub := conn.Subscribe(catalog.TopicUpdated)
	defer conn.Unsubscribe(catSub)
	repSub := conn.Subscribe(config.ReportFilter)
	defer conn.Unsubscribe(repSub)
	ivSub := conn.Subscribe(TopicInterval)
	defer conn.Unsubscribe(ivSub)
	statsSub := conn.Subscribe(TopicStats)
	defer conn.Unsubscribe(statsSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Monitor stopping")
			return nil
		case <-tick.C:
			st := s.Stats()
			s.log.Info().
				Int("catalog", st.CatalogSize).
				Int("reports", st.Reports).
				Strs("invalid", st.Invalid).
				Uint64("bus_drops", st.BusDrops).
				Msg("Heartbeat")
		case msg := <-catSub.Channel():
			s.log.Info().Interface("update", msg.Payload).Msg("Catalog changed, revalidating")
			n, err := s.rv.Revalidate(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("Revalidation failed")
				continue
			}
			s.mu.Lock()
			s.revals++
			s.mu.Unlock()
			s.log.Debug().Int("configs", n).Msg("Revalidation done")
		case msg := <-repSub.Channel():
			r, ok := msg.Payload.(types.Report)
			if !ok || len(msg.Topic) < 2 {
				continue
			}
			s.mu.Lock()
			s.valid[msg.Topic[1]] = r.Valid
			s.mu.Unlock()
		case msg := <-statsSub.Channel():
			conn.Reply(msg, s.Stats(), false)
		case msg := <-ivSub.Channel():
			if d, ok := interval(msg.Payload); ok {
				tick.Reset(d)
				s.log.Info().Dur("interval", d).Msg("Heartbeat interval changed")
			}
		}
	}
}

func interval(v any) (time.Duration, bool) {
	var d time.Duration
	switch x := v.(type) {
	case time.Duration:
		d = x
	case float64:
		d = time.Duration(x * float64(time.Second))
	case int:
		d = time.Duration(x) * time.Second
	case string:
		var err error
		if d, err = time.ParseDuration(x); err != nil {
			return 0, false
		}
	}
	if d <= 0 {
		return 0, false
	}
	return mathx.Clamp(d, minInterval, maxInterval), true
}
