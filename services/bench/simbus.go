// Package bench is a host-side I2C bring-up bench: a simulated bus with
// attachable devices, a single-worker bus owner and an address probe.
package bench

import (
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"mcuplan/errcode"
)

// Device answers transactions addressed to it.
type Device interface {
	Tx(w, r []byte) error
}

// Transfer records one transaction seen by a SimBus.
type Transfer struct {
	Addr uint16
	W    []byte
	Rn   int
	Err  error
}

// SimBus implements drivers.I2C for the host. Addresses with no attached
// device do not acknowledge.
type SimBus struct {
	mu      sync.Mutex
	devices map[uint16]Device
	latency time.Duration
	history []Transfer
}

var _ drivers.I2C = (*SimBus)(nil)

func NewSimBus(latency time.Duration) *SimBus {
	return &SimBus{devices: map[uint16]Device{}, latency: latency}
}

func (b *SimBus) Attach(addr uint16, d Device) {
	b.mu.Lock()
	b.devices[addr] = d
	b.mu.Unlock()
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	if b.latency > 0 {
		time.Sleep(b.latency)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if d, ok := b.devices[addr]; ok {
		err = d.Tx(w, r)
	} else {
		err = errcode.Wrap(errcode.NoAck, "i2c.tx", fmt.Sprintf("0x%02x", addr), nil)
	}
	b.history = append(b.history, Transfer{Addr: addr, W: append([]byte(nil), w...), Rn: len(r), Err: err})
	return err
}

// History returns a copy of every transaction so far.
func (b *SimBus) History() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Transfer(nil), b.history...)
}

// Registers is a register-file device: the first written byte selects the
// register, further bytes are stored from there and reads continue from it.
type Registers struct {
	mu   sync.Mutex
	Mem  [256]byte
	addr byte
}

func (d *Registers) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w) > 0 {
		d.addr = w[0]
		for _, v := range w[1:] {
			d.Mem[d.addr] = v
			d.addr++
		}
	}
	for i := range r {
		r[i] = d.Mem[d.addr]
		d.addr++
	}
	return nil
}
