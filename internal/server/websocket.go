package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// liveFormulas serves the designer's live-evaluation channel. Each text
// frame carries one evalRequest; the server answers every frame with a
// success or error payload so the client can show results as the user
// types. A malformed frame gets an error reply, not a disconnect.
func (s *Server) liveFormulas(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.metrics.liveConnections.Inc()
	defer s.metrics.liveConnections.Dec()

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Live evaluation session opened")

	for {
		var req evalRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Live evaluation session closed")
			}
			return
		}

		start := time.Now()
		payload, ferr := s.evaluateOne(&req)
		s.metrics.Observe("live", start, errOrNil(ferr))
		if ferr != nil {
			payload = errorPayload(ferr)
		}

		if err := conn.WriteJSON(payload); err != nil {
			log.Debug().Err(err).Msg("Live evaluation write failed")
			return
		}
	}
}
