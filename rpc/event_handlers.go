package rpc

import (
	"net/http"

	"swapguard/core/events"
	"swapguard/core/types"
)

// eventPayload is satisfied by module events that carry a structured
// attribute rendering.
type eventPayload interface {
	Event() *types.Event
}

// SetEventFeed attaches the recorder drained by events_list. Without a feed
// the method serves an empty list.
func (s *Server) SetEventFeed(feed *events.Recorder) { s.feed = feed }

func (s *Server) handleEventsList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	drained := s.feed.Drain()
	out := make([]*types.Event, 0, len(drained))
	for _, evt := range drained {
		if payload, ok := evt.(eventPayload); ok {
			out = append(out, payload.Event())
			continue
		}
		out = append(out, &types.Event{Type: evt.EventType()})
	}
	writeResult(w, req.ID, map[string]interface{}{"events": out})
}
