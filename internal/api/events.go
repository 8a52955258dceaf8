package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// planEvents streams a plan's progress over a websocket. The first message
// is a snapshot of the plan; the stream ends after plan.finished.
func (s *Server) planEvents(w http.ResponseWriter, r *http.Request, id string) {
	// Subscribe before reading the snapshot so no event is lost in between.
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	plan, err := s.Store.GetPlan(r.Context(), id)
	if err != nil {
		s.storeProblem(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	write := func(evt Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(evt)
	}
	closeNormal := func(reason string) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	if err := write(Event{Type: EventPlanSnapshot, Data: map[string]any{"plan": plan}}); err != nil {
		return
	}
	if finished(plan.Status) {
		closeNormal("plan finished")
		return
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-s.ctx.Done():
			closeNormal("server shutting down")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				return
			}
			if evt.Type == EventPlanFinished {
				closeNormal("plan finished")
				return
			}
		}
	}
}
