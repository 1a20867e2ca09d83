package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcuplan/bus"
	"mcuplan/errcode"
	"mcuplan/internal/store"
	"mcuplan/services/catalog"
	"mcuplan/services/validate"
	"mcuplan/types"
)

type fixture struct {
	svc  *Service
	bus  *bus.Bus
	conn *bus.Connection
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	b := bus.New(16)
	cat := catalog.NewBuiltin()
	svc := New(Deps{
		Catalog:    cat,
		Validator:  validate.New(cat, zerolog.Nop()),
		Selections: store.NewSelectionRepo(db, zerolog.Nop()),
		Configs:    store.NewConfigRepo(db, zerolog.Nop()),
		Conn:       b.NewConnection("config"),
		Log:        zerolog.Nop(),
	})
	return fixture{svc: svc, bus: b, conn: b.NewConnection("test")}
}

func withDefaults(t *testing.T, m map[string][]byte) {
	old := DefaultsLookup
	DefaultsLookup = func(id string) ([]byte, bool) {
		b, ok := m[id]
		return b, ok
	}
	t.Cleanup(func() { DefaultsLookup = old })
}

func recv(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestEmbeddedDefaultsAreValid(t *testing.T) {
	f := newFixture(t)
	for id := range embeddedDefaults {
		r, err := f.svc.Report(context.Background(), id)
		require.NoError(t, err, id)
		assert.True(t, r.Valid, "%s: %+v", id, r.Issues())
	}
}

func TestSelectSeedsStarterAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Selected(ctx)
	assert.Equal(t, errcode.NotFound, errcode.Of(err))

	sel, err := f.svc.Select(ctx, " rp2040 ")
	require.NoError(t, err)
	assert.Equal(t, "rp2040", sel.MCU.ID)

	got, err := f.svc.Selected(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RP2040", got.MCU.Name)

	// Retained state is replayed to late subscribers.
	m := recv(t, f.conn.Subscribe(TopicConfig("rp2040")))
	cfg, ok := m.Payload.(*types.Configuration)
	require.True(t, ok)
	_, has := cfg.Get(types.PeriphUART, "UART0")
	assert.True(t, has)

	m = recv(t, f.conn.Subscribe(TopicReport("rp2040")))
	r := m.Payload.(types.Report)
	assert.True(t, r.Valid)

	stored, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	_, err = f.svc.Select(ctx, "pdp11")
	assert.Equal(t, errcode.UnknownMCU, errcode.Of(err))
}

func TestPutDetectsDefaultCollision(t *testing.T) {
	ctx := context.Background()
	withDefaults(t, nil)
	f := newFixture(t)
	reports := f.conn.Subscribe(ReportFilter)

	r, err := f.svc.Put(ctx, "rp2040", types.PeriphUART, "UART1",
		types.Fields{"baudRate": 115200, "txPin": "GP4", "rxPin": "GP5"})
	require.NoError(t, err)
	assert.True(t, r.Valid)
	recv(t, reports)

	r, err = f.svc.Put(ctx, "rp2040", types.PeriphI2C, "I2C0",
		types.Fields{"speed": 100000, "sdaPin": "GP4", "sclPin": "GP5"})
	require.NoError(t, err)
	assert.False(t, r.Valid)
	assert.Len(t, r.Conflicts, 4)

	m := recv(t, reports)
	assert.Equal(t, "report/rp2040", m.Topic.String())
	assert.False(t, m.Payload.(types.Report).Valid)

	// Removing one side resolves it.
	r, err = f.svc.Delete(ctx, "rp2040", types.PeriphI2C, "I2C0")
	require.NoError(t, err)
	assert.True(t, r.Valid)

	_, err = f.svc.Delete(ctx, "rp2040", types.PeriphI2C, "I2C0")
	assert.Equal(t, errcode.NotFound, errcode.Of(err))
}

func TestPutRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Put(ctx, "rp2040", "usb", "USB0", nil)
	assert.Equal(t, errcode.UnknownPeripheral, errcode.Of(err))
	_, err = f.svc.Put(ctx, "rp2040", types.PeriphUART, " ", nil)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	_, err = f.svc.Put(ctx, "nope", types.PeriphUART, "UART0", nil)
	assert.Equal(t, errcode.UnknownMCU, errcode.Of(err))
}

func TestGetWithoutStarterIsEmpty(t *testing.T) {
	withDefaults(t, nil)
	f := newFixture(t)
	cfg, err := f.svc.Get(context.Background(), "nrf52840")
	require.NoError(t, err)
	assert.Equal(t, "nrf52840", cfg.MCUID)
	assert.Empty(t, cfg.Peripherals)

	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "an empty configuration is not persisted")
}

func TestRevalidatePublishesEveryReport(t *testing.T) {
	ctx := context.Background()
	withDefaults(t, nil)
	f := newFixture(t)
	_, err := f.svc.Put(ctx, "rp2040", types.PeriphUART, "UART0", types.Fields{"baudRate": 9600})
	require.NoError(t, err)
	_, err = f.svc.Put(ctx, "atmega328p", types.PeriphUART, "USART0", types.Fields{"baudRate": 9600})
	require.NoError(t, err)

	sub := f.conn.Subscribe(ReportFilter)
	recv(t, sub) // retained replay
	recv(t, sub)

	n, err := f.svc.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	seen := map[string]bool{}
	seen[recv(t, sub).Topic.String()] = true
	seen[recv(t, sub).Topic.String()] = true
	assert.Equal(t, map[string]bool{"report/rp2040": true, "report/atmega328p": true}, seen)
}

// gatedStore pauses List until released so a concurrent edit can race it.
type gatedStore struct {
	ConfigStore
	listing chan struct{}
	release chan struct{}
}

func (g *gatedStore) List(ctx context.Context) ([]*types.Configuration, error) {
	all, err := g.ConfigStore.List(ctx)
	close(g.listing)
	<-g.release
	return all, err
}

func TestRevalidateDoesNotRepublishStaleReport(t *testing.T) {
	ctx := context.Background()
	withDefaults(t, nil)
	f := newFixture(t)
	_, err := f.svc.Put(ctx, "rp2040", types.PeriphUART, "UART1", types.Fields{"baudRate": 115200, "txPin": "GP4"})
	require.NoError(t, err)

	gate := &gatedStore{ConfigStore: f.svc.cfgs, listing: make(chan struct{}), release: make(chan struct{})}
	f.svc.cfgs = gate

	revalidated := make(chan error, 1)
	go func() {
		_, err := f.svc.Revalidate(ctx)
		revalidated <- err
	}()
	<-gate.listing

	put := make(chan types.Report, 1)
	go func() {
		r, _ := f.svc.Put(ctx, "rp2040", types.PeriphI2C, "I2C0", types.Fields{"speed": 100000, "sdaPin": "GP4"})
		put <- r
	}()

	select {
	case <-put:
		t.Fatal("edit completed while revalidation was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)
	require.NoError(t, <-revalidated)
	latest := <-put
	require.False(t, latest.Valid)

	m, ok := f.bus.Retained(TopicReport("rp2040"))
	require.True(t, ok)
	rep := m.Payload.(types.Report)
	assert.Equal(t, latest.ID, rep.ID)
	assert.False(t, rep.Valid)
	assert.Len(t, rep.Conflicts, 2)
}

func TestResetRestoresStarter(t *testing.T) {
	ctx := context.Background()
	withDefaults(t, map[string][]byte{"rp2040": []byte(cfgRP2040)})
	f := newFixture(t)

	r, err := f.svc.Put(ctx, "rp2040", types.PeriphI2C, "I2C0", types.Fields{"speed": 100000, "sdaPin": "GP0"})
	require.NoError(t, err)
	require.False(t, r.Valid)

	r, err = f.svc.Reset(ctx, "rp2040")
	require.NoError(t, err)
	assert.True(t, r.Valid)

	cfg, err := f.svc.Get(ctx, "rp2040")
	require.NoError(t, err)
	_, has := cfg.Get(types.PeriphI2C, "I2C0")
	assert.False(t, has)
	_, has = cfg.Get(types.PeriphUART, "UART0")
	assert.True(t, has)

	m, ok := f.bus.Retained(TopicReport("rp2040"))
	require.True(t, ok)
	assert.Equal(t, r.ID, m.Payload.(types.Report).ID)

	_, err = f.svc.Reset(ctx, "z80")
	assert.Equal(t, errcode.UnknownMCU, errcode.Of(err))
}
