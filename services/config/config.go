// Package config owns the user's MCU selection and per-MCU peripheral
// configurations. Every change is persisted, validated and published on
// the bus as retained state.
package config

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mcuplan/bus"
	"mcuplan/errcode"
	"mcuplan/types"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	reportPrefix = "report"
)

var TopicSelection = bus.T("selection")

func TopicConfig(mcuID string) bus.Topic { return bus.T(configPrefix, mcuID) }
func TopicReport(mcuID string) bus.Topic { return bus.T(reportPrefix, mcuID) }

// ReportFilter matches every published report.
var ReportFilter = bus.T(reportPrefix, "#")

// -----------------------------------------------------------------------------
// Dependencies
// -----------------------------------------------------------------------------

type Catalog interface {
	Lookup(id string) (types.MCU, error)
}

type Validator interface {
	Validate(cfg *types.Configuration) types.Report
}

type SelectionStore interface {
	Save(ctx context.Context, sel types.Selection) error
	Load(ctx context.Context) (types.Selection, error)
}

type ConfigStore interface {
	Save(ctx context.Context, cfg *types.Configuration) error
	Load(ctx context.Context, mcuID string) (*types.Configuration, error)
	Delete(ctx context.Context, mcuID string) (bool, error)
	List(ctx context.Context) ([]*types.Configuration, error)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	Name string

	cat  Catalog
	val  Validator
	sel  SelectionStore
	cfgs ConfigStore
	conn *bus.Connection
	log  zerolog.Logger
	now  func() time.Time
	mu   sync.Mutex // serialises read-modify-write and republishing of stored configs
}

type Deps struct {
	Catalog    Catalog
	Validator  Validator
	Selections SelectionStore
	Configs    ConfigStore
	Conn       *bus.Connection
	Log        zerolog.Logger
}

func New(d Deps) *Service {
	return &Service{
		Name: serviceName,
		cat:  d.Catalog,
		val:  d.Validator,
		sel:  d.Selections,
		cfgs: d.Configs,
		conn: d.Conn,
		log:  d.Log.With().Str("component", serviceName).Logger(),
		now:  time.Now,
	}
}

// Select records mcuID as the chosen MCU. The first selection of an MCU
// seeds its starter configuration when one is embedded.
func (s *Service) Select(ctx context.Context, mcuID string) (types.Selection, error) {
	m, err := s.cat.Lookup(strings.TrimSpace(mcuID))
	if err != nil {
		return types.Selection{}, err
	}
	sel := types.Selection{MCU: m, SelectedAt: s.now().UTC()}
	if err := s.sel.Save(ctx, sel); err != nil {
		return types.Selection{}, err
	}
	s.publish(TopicSelection, sel)
	s.log.Info().Str("mcu", m.ID).Msg("MCU selected")

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.load(ctx, m.ID)
	if err != nil {
		return sel, err
	}
	s.announce(cfg)
	return sel, nil
}

// Selected returns the persisted selection or errcode.NotFound.
func (s *Service) Selected(ctx context.Context) (types.Selection, error) {
	return s.sel.Load(ctx)
}

// Get returns the stored configuration for mcuID, its starter
// configuration, or an empty one.
func (s *Service) Get(ctx context.Context, mcuID string) (*types.Configuration, error) {
	m, err := s.cat.Lookup(mcuID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, m.ID)
}

// Put replaces the fields of one instance and returns the new report.
func (s *Service) Put(ctx context.Context, mcuID string, t types.PeripheralType, instance string, f types.Fields) (types.Report, error) {
	const op = "config.put"
	if !t.Known() {
		return types.Report{}, errcode.Wrap(errcode.UnknownPeripheral, op, string(t), nil)
	}
	if strings.TrimSpace(instance) == "" {
		return types.Report{}, errcode.Wrap(errcode.InvalidParams, op, "instance is required", nil)
	}
	if f == nil {
		f = types.Fields{}
	}
	return s.mutate(ctx, mcuID, func(cfg *types.Configuration) error {
		cfg.Set(t, instance, f)
		return nil
	})
}

// Delete removes one instance; errcode.NotFound if it was not configured.
func (s *Service) Delete(ctx context.Context, mcuID string, t types.PeripheralType, instance string) (types.Report, error) {
	return s.mutate(ctx, mcuID, func(cfg *types.Configuration) error {
		if !cfg.Delete(t, instance) {
			return errcode.Wrap(errcode.NotFound, "config.delete", string(t)+"/"+instance, nil)
		}
		return nil
	})
}

// Reset drops the stored configuration of mcuID and announces what replaces
// it: the starter configuration when one is embedded, otherwise an empty one.
func (s *Service) Reset(ctx context.Context, mcuID string) (types.Report, error) {
	m, err := s.cat.Lookup(mcuID)
	if err != nil {
		return types.Report{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.cfgs.Delete(ctx, m.ID)
	if err != nil {
		return types.Report{}, err
	}
	cfg, err := s.load(ctx, m.ID)
	if err != nil {
		return types.Report{}, err
	}
	s.log.Info().Str("mcu", m.ID).Bool("removed", removed).Msg("Configuration reset")
	return s.announce(cfg), nil
}

// List returns every stored configuration.
func (s *Service) List(ctx context.Context) ([]*types.Configuration, error) {
	return s.cfgs.List(ctx)
}

// Report validates the current configuration of mcuID.
func (s *Service) Report(ctx context.Context, mcuID string) (types.Report, error) {
	cfg, err := s.Get(ctx, mcuID)
	if err != nil {
		return types.Report{}, err
	}
	return s.val.Validate(cfg), nil
}

// Revalidate re-runs validation for every stored configuration and
// republishes the reports. It returns how many were checked.
func (s *Service) Revalidate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.cfgs.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, cfg := range all {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r := s.val.Validate(cfg)
		s.publish(TopicReport(cfg.MCUID), r)
	}
	s.log.Debug().Int("configs", len(all)).Msg("Revalidated")
	return len(all), nil
}

func (s *Service) mutate(ctx context.Context, mcuID string, fn func(*types.Configuration) error) (types.Report, error) {
	m, err := s.cat.Lookup(mcuID)
	if err != nil {
		return types.Report{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx, m.ID)
	if err != nil {
		return types.Report{}, err
	}
	if err := fn(cfg); err != nil {
		return types.Report{}, err
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.cfgs.Save(ctx, cfg); err != nil {
		return types.Report{}, err
	}
	return s.announce(cfg), nil
}

// load returns a private copy; callers hold s.mu.
func (s *Service) load(ctx context.Context, mcuID string) (*types.Configuration, error) {
	cfg, err := s.cfgs.Load(ctx, mcuID)
	switch {
	case err == nil:
		return cfg, nil
	case errcode.Of(err) != errcode.NotFound:
		return nil, err
	}
	if seeded, ok := s.starter(mcuID); ok {
		if err := s.cfgs.Save(ctx, seeded); err != nil {
			return nil, err
		}
		return seeded, nil
	}
	return types.NewConfiguration(mcuID), nil
}

func (s *Service) starter(mcuID string) (*types.Configuration, bool) {
	raw, ok := DefaultsLookup(mcuID)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	cfg := types.NewConfiguration(mcuID)
	if err := json.Unmarshal(raw, cfg); err != nil {
		s.log.Warn().Err(err).Str("mcu", mcuID).Msg("Bad embedded starter config")
		return nil, false
	}
	cfg.MCUID = mcuID
	cfg.UpdatedAt = s.now().UTC()
	return cfg, true
}

// announce publishes cfg and its report, both retained, and returns the report.
func (s *Service) announce(cfg *types.Configuration) types.Report {
	r := s.val.Validate(cfg)
	s.publish(TopicConfig(cfg.MCUID), cfg.Clone())
	s.publish(TopicReport(cfg.MCUID), r)
	s.log.Debug().
		Str("mcu", cfg.MCUID).
		Bool("valid", r.Valid).
		Int("conflicts", len(r.Conflicts)).
		Msg("Configuration updated")
	return r
}

func (s *Service) publish(t bus.Topic, payload any) {
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.Bus().NewMessage(t, payload, true))
}
