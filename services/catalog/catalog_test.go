package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcuplan/bus"
	"mcuplan/errcode"
	"mcuplan/types"
)

func TestBuiltinSpecsAreValid(t *testing.T) {
	for _, m := range Builtin() {
		assert.NoError(t, Validate(m), m.ID)
		assert.NotEmpty(t, m.Inventory(), m.ID)
	}
	c := NewBuiltin()
	assert.Equal(t, len(Builtin()), c.Len())
}

func TestGetIsCaseInsensitive(t *testing.T) {
	c := NewBuiltin()
	m, ok := c.Get("RP2040")
	require.True(t, ok)
	assert.Equal(t, "rp2040", m.ID)

	_, err := c.Lookup("z80")
	assert.Equal(t, errcode.UnknownMCU, errcode.Of(err))
}

func TestListSorted(t *testing.T) {
	ids := []string{}
	for _, m := range NewBuiltin().List() {
		ids = append(ids, m.ID)
	}
	assert.IsIncreasing(t, ids)
}

func TestMergeReplacesAndAppends(t *testing.T) {
	c := NewBuiltin()
	n := c.Len()
	added, replaced := c.Merge(
		types.MCU{ID: "rp2040", Name: "RP2040 (remote)"},
		types.MCU{ID: "samd21", Name: "SAMD21"},
		types.MCU{ID: ""},
	)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, n+1, c.Len())
	m, _ := c.Get("rp2040")
	assert.Equal(t, "RP2040 (remote)", m.Name)
}

func TestValidateRejectsBadSpecs(t *testing.T) {
	dup := types.MCU{ID: "x", Peripherals: []types.PeripheralSpec{{Type: types.PeriphUART, Instances: []types.InstanceSpec{
		{Name: "U1"}, {Name: "u1"},
	}}}}
	assert.Error(t, Validate(dup))

	empty := types.MCU{ID: "x", Peripherals: []types.PeripheralSpec{{Type: types.PeriphUART, Instances: []types.InstanceSpec{
		{Name: "U1", Pins: map[string]string{"tx": " "}},
	}}}}
	assert.Error(t, Validate(empty))

	unknown := types.MCU{ID: "x", Peripherals: []types.PeripheralSpec{{Type: "usb"}}}
	assert.Equal(t, errcode.UnknownPeripheral, errcode.Of(Validate(unknown)))
}

const yamlOne = `
id: samd21
name: SAMD21G18
clock_mhz: 48
pins: [PA00, PA01]
peripherals:
  - type: uart
    instances:
      - name: SERCOM0
        pins: {tx: PA10, rx: PA11}
`

const jsonList = `[{"id":"stm32g0","name":"STM32G031","peripherals":[]},{"id":"ch32v003","name":"CH32V003","peripherals":[]}]`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samd21.yaml"), []byte(yamlOne), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "more.json"), []byte(jsonList), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("id: [oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	mcus, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yml")
	require.Len(t, mcus, 3)

	c := New(mcus...)
	m, ok := c.Get("samd21")
	require.True(t, ok)
	in, ok := m.Instance(types.PeriphUART, "SERCOM0")
	require.True(t, ok)
	assert.Equal(t, "PA10", in.Pins["tx"])
}

func TestRemoteRefreshMerges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]types.MCU{{ID: "remote-mcu", Name: "Remote"}})
	}))
	defer srv.Close()

	c := NewBuiltin()
	r := NewRemote(srv.URL, time.Second, zerolog.Nop())
	u, err := r.Refresh(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, Updated{Source: "remote", Added: 1}, u)
	_, ok := c.Get("remote-mcu")
	assert.True(t, ok)

	u, err = r.Refresh(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, Updated{Source: "remote", Replaced: 1}, u)
}

func TestRefreshJobPassesCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]types.MCU{{ID: "rp2040", Name: "RP2040 rev B"}, {ID: "new-mcu", Name: "New"}})
	}))
	defer srv.Close()

	var got Updated
	job := &RefreshJob{
		Remote:  NewRemote(srv.URL, time.Second, zerolog.Nop()),
		Catalog: NewBuiltin(),
		After:   func(_ context.Context, u Updated) { got = u },
	}
	require.NoError(t, job.Run())
	assert.Equal(t, Updated{Source: "remote", Added: 1, Replaced: 1}, got)
}

func TestRemoteFailureLeavesCatalogUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewBuiltin()
	n := c.Len()
	_, err := NewRemote(srv.URL, time.Second, zerolog.Nop()).Refresh(context.Background(), c)
	assert.Equal(t, errcode.Unavailable, errcode.Of(err))
	assert.Equal(t, n, c.Len())
}

func TestRemoteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewRemote(srv.URL, 20*time.Millisecond, zerolog.Nop()).Fetch(context.Background())
	assert.Equal(t, errcode.Timeout, errcode.Of(err))
}

func TestRemoteWithoutURL(t *testing.T) {
	_, err := NewRemote("", 0, zerolog.Nop()).Fetch(context.Background())
	assert.Equal(t, errcode.Unavailable, errcode.Of(err))
}

func TestWatcherReloadPublishes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samd21.yaml"), []byte(yamlOne), 0o644))

	b := bus.New(4)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicUpdated)

	c := NewBuiltin()
	u := NewWatcher(dir, c, conn, zerolog.Nop()).Reload()
	assert.Equal(t, Updated{Source: "dir", Added: 1}, u)

	select {
	case m := <-sub.Channel():
		assert.Equal(t, u, m.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no catalog/updated message")
	}
}

func TestWatcherPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	b := bus.New(4)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicUpdated)

	c := NewBuiltin()
	w := NewWatcher(dir, c, conn, zerolog.Nop())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "samd21.yaml"), []byte(yamlOne), 0o644)
		_, ok := c.Get("samd21")
		return ok
	}, 2*time.Second, 50*time.Millisecond)

	select {
	case <-sub.Channel():
	case <-time.After(time.Second):
		t.Fatal("no catalog/updated message")
	}
}
