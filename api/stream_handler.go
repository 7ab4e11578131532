package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/costwatch/costwatch-dashboard/dashboard"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/highlight"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 4096
)

// streamMessage is pushed to the client. Type is "chart" or "error".
type streamMessage struct {
	Type    string           `json:"type"`
	Chart   *dashboard.Chart `json:"chart,omitempty"`
	Dataset dataset.Name     `json:"dataset,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// streamCommand lets the client drive the highlight over the socket. Action is
// "enter" or "leave"; the remaining fields follow highlightRequest.
type streamCommand struct {
	Action string `json:"action"`
	highlightRequest
}

// handleStream pushes the view's chart on every highlight change and dataset
// update until the client disconnects or the view expires.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "view_id", view.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan string, 1)
	go s.readStream(conn, view, cancel, errs)

	highlights := view.Highlight.Watch(ctx)
	updates := s.datasets.Subscribe(ctx)
	ping := s.clk.Ticker(streamPingPeriod)
	defer ping.Stop()

	write := func(msg streamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(msg)
	}
	push := func(name dataset.Name) bool {
		if _, ok := s.views.Get(view.ID); !ok {
			_ = write(streamMessage{Type: "error", Error: "view expired"})
			return false
		}
		chart := s.builder.Chart(view.Highlight)
		return write(streamMessage{Type: "chart", Chart: &chart, Dataset: name}) == nil
	}

	s.log.Debug("stream opened", "view_id", view.ID, "request_id", requestIDFromRequest(r))
	defer s.log.Debug("stream closed", "view_id", view.ID)

	if !push("") {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
			return
		case _, ok := <-highlights:
			if !ok || !push("") {
				return
			}
		case name, ok := <-updates:
			if !ok || !push(name) {
				return
			}
		case msg := <-errs:
			if write(streamMessage{Type: "error", Error: msg}) != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// streamHighlights remembers what one connection entered so it can be left when
// the connection goes away.
type streamHighlights struct {
	rng   *highlight.Range
	point *highlight.Point
}

func (o *streamHighlights) entered(req highlightRequest) {
	switch req.Kind {
	case highlightRange:
		o.rng = &highlight.Range{Start: *req.Start, End: *req.End}
		o.point = nil
	case highlightPoint:
		o.point = &highlight.Point{Timestamp: *req.Timestamp}
		o.rng = nil
	}
}

func (o *streamHighlights) left(req highlightRequest) {
	switch req.Kind {
	case highlightRange:
		o.rng = nil
	case highlightPoint:
		o.point = nil
	}
}

// release leaves whatever the connection still holds. Leaves are identity-checked,
// so a selection another writer entered since is kept.
func (o *streamHighlights) release(c *highlight.Coordinator) {
	if o.rng != nil {
		c.LeaveRange(*o.rng)
	}
	if o.point != nil {
		c.LeavePoint(*o.point)
	}
}

// readStream applies client highlight commands. It is the only reader of conn and
// cancels the stream on the first read error, leaving any highlight the client
// entered.
func (s *Server) readStream(conn *websocket.Conn, view *View, cancel context.CancelFunc, errs chan<- string) {
	defer cancel()

	var held streamHighlights
	defer held.release(view.Highlight)

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		var cmd streamCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("stream read failed", "view_id", view.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))

		var err error
		switch cmd.Action {
		case "enter":
			if err = enterHighlight(view.Highlight, cmd.highlightRequest); err == nil {
				held.entered(cmd.highlightRequest)
			}
		case "leave":
			if err = leaveHighlight(view.Highlight, cmd.highlightRequest); err == nil {
				held.left(cmd.highlightRequest)
			}
		default:
			err = errUnknownAction
		}
		if err != nil {
			select {
			case errs <- err.Error():
			default:
			}
		}
	}
}
