package api

import (
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Trace streams the wire trace over a websocket: first the remembered
// entries, then every new transaction as it happens. The connection
// lives until the client goes away or falls too far behind.
func (a *api) Trace(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		a.Log("trace accept: " + err.Error())
		return
	}
	defer conn.Close(websocket.StatusInternalError, "trace ended")

	ctx := r.Context()
	trace := a.core.Trace()

	ch, cancel := trace.Subscribe()
	defer cancel()

	// Replay history after subscribing so nothing falls in between;
	// a duplicate entry on the boundary is harmless for a log view.
	for _, e := range trace.Recent() {
		if err := wsjson.Write(ctx, conn, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server closing")
			return
		case e, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "trace closed")
				return
			}
			if err := wsjson.Write(ctx, conn, e); err != nil {
				return
			}
		}
	}
}
