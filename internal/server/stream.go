package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"mcuplan/bus"
	"mcuplan/services/config"
)

// Frame is one message on the stream.
type Frame struct {
	Type    string `json:"type"` // "pub"
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// streamable limits what clients may follow.
var streamable = map[string]bool{"report": true, "config": true, "selection": true, "catalog": true}

// streamFilters reads ?topic=a/b (repeatable); the default is every report.
func streamFilters(r *http.Request) []bus.Topic {
	var out []bus.Topic
	for _, raw := range r.URL.Query()["topic"] {
		t := bus.T(strings.Split(strings.Trim(raw, "/"), "/")...)
		if len(t) == 0 || !streamable[t[0]] {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		out = []bus.Topic{config.ReportFilter}
	}
	return out
}

// handleStream pushes matching bus messages, retained state first, until
// the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	ctx := c.CloseRead(r.Context())
	conn := s.bus.NewConnection("stream-" + middleware.GetReqID(r.Context()))
	defer conn.Disconnect()

	filters := streamFilters(r)
	subs := make([]*bus.Subscription, 0, len(filters))
	for _, f := range filters {
		subs = append(subs, conn.Subscribe(f))
	}
	out := merge(ctx, subs)

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	s.log.Debug().Int("filters", len(filters)).Msg("Stream opened")

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case msg := <-out:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, c, Frame{Type: "pub", Topic: msg.Topic.String(), Payload: msg.Payload})
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("Stream write failed")
				return
			}
		}
	}
}

// merge fans subscription channels into one until ctx ends.
func merge(ctx context.Context, subs []*bus.Subscription) <-chan *bus.Message {
	out := make(chan *bus.Message)
	for _, sub := range subs {
		go func(ch <-chan *bus.Message) {
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub.Channel())
	}
	return out
}
