package bench

import (
	"time"

	"tinygo.org/x/drivers"

	"mcuplan/errcode"
)

// -----------------------------------------------------------------------------
// Bus owner (one worker goroutine per bus)
// -----------------------------------------------------------------------------

type txReq struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1); worker replies best-effort
}

// Owner serialises every transaction on one bus through a single goroutine.
type Owner struct {
	hw   drivers.I2C
	reqs chan txReq
	quit chan struct{}
	done chan struct{}
}

func NewOwner(hw drivers.I2C) *Owner {
	o := &Owner{
		hw:   hw,
		reqs: make(chan txReq, 16),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Owner) loop() {
	defer close(o.done)
	for {
		select {
		case req := <-o.reqs:
			err := o.hw.Tx(req.addr, req.w, req.r)
			// best-effort reply; do not block the worker
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

// Close stops the worker and waits for it to exit.
func (o *Owner) Close() {
	close(o.quit)
	<-o.done
}

// Client returns a drivers.I2C that posts to the worker. A zero timeout
// waits forever.
func (o *Owner) Client(timeout time.Duration) drivers.I2C {
	return &client{o: o, timeout: timeout}
}

type client struct {
	o       *Owner
	timeout time.Duration
}

var _ drivers.I2C = (*client)(nil)

func (c *client) Tx(addr uint16, w, r []byte) error {
	req := txReq{addr: addr, w: w, r: r, done: make(chan error, 1)}

	if c.timeout <= 0 {
		select {
		case c.o.reqs <- req:
		case <-c.o.quit:
			return errcode.Unavailable
		}
		select {
		case err := <-req.done:
			return err
		case <-c.o.quit:
			return errcode.Unavailable
		}
	}

	t := time.NewTimer(c.timeout)
	defer t.Stop()
	select {
	case c.o.reqs <- req:
	case <-t.C:
		return errcode.Busy
	case <-c.o.quit:
		return errcode.Unavailable
	}
	select {
	case err := <-req.done:
		return err
	case <-t.C:
		return errcode.Timeout
	case <-c.o.quit:
		return errcode.Unavailable
	}
}
