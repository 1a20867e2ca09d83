package bench

import (
	"context"

	"tinygo.org/x/drivers"

	"mcuplan/errcode"
	"mcuplan/x/mathx"
)

// ProbeRange is the usable 7-bit address space; the rest is reserved.
var ProbeRange = mathx.Range[uint16]{Lo: 0x08, Hi: 0x77}

// ProbeResult lists addresses that acknowledged and any that failed for a
// reason other than a missing acknowledge.
type ProbeResult struct {
	Found  []uint16          `json:"found"`
	Failed map[uint16]string `json:"failed,omitempty"`
	Probed int               `json:"probed"`
}

// Probe issues a zero-length write to each address in order. With no
// addresses it scans ProbeRange. Addresses outside ProbeRange are rejected.
func Probe(ctx context.Context, bus drivers.I2C, addrs []uint16) (ProbeResult, error) {
	if len(addrs) == 0 {
		for a := ProbeRange.Lo; a <= ProbeRange.Hi; a++ {
			addrs = append(addrs, a)
		}
	}
	for _, a := range addrs {
		if !ProbeRange.Contains(a) {
			return ProbeResult{}, errcode.Wrap(errcode.OutOfRange, "probe", "reserved address", nil)
		}
	}

	res := ProbeResult{Found: []uint16{}}
	for _, a := range addrs {
		if err := ctx.Err(); err != nil {
			return res, errcode.Wrap(errcode.Timeout, "probe", "cancelled", err)
		}
		res.Probed++
		err := bus.Tx(a, nil, nil)
		switch errcode.Of(err) {
		case errcode.OK:
			res.Found = append(res.Found, a)
		case errcode.NoAck:
		default:
			if res.Failed == nil {
				res.Failed = map[uint16]string{}
			}
			res.Failed[a] = err.Error()
		}
	}
	return res, nil
}
