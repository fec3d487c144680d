package server

import (
	"errors"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/ironsheep/image-filter-server/internal/filters"
	"github.com/ironsheep/image-filter-server/internal/protocol"
)

// handleList sends the supported filter names.
func (s *Server) handleList(sess *session) error {
	names := make([]string, 0, len(filters.Kinds()))
	for _, k := range filters.Kinds() {
		names = append(names, k.String())
	}
	return sess.writeJSON(names)
}

// handleStat sends per-day request counts for the trailing window ending
// today.
func (s *Server) handleStat(sess *session) error {
	counts, err := s.usage.TrailingWindowCount(sess.ctx, s.now(), StatWindowDays)
	if err != nil {
		return err
	}
	return sess.writeJSON(counts)
}

// finish reports the outcome of a session handler, records it and closes
// the connection. Transport failures are not reported since the socket is
// unusable; any other error is sent as a status message.
func (s *Server) finish(sess *session, err error) protocol.Status {
	status := protocol.StatusOf(err)

	switch {
	case err == nil:
	case errors.Is(err, errTransport):
		sess.log.Debug().Err(err).Msg("Connection lost")
	default:
		msg := protocol.MessageOf(err)
		if status == protocol.StatusInternalError {
			sess.log.Error().Err(err).Msg("Request failed")
		} else {
			sess.log.Info().Err(err).Int("status", int(status)).Msg("Request rejected")
		}
		if werr := sess.writeStatus(msg); werr != nil {
			sess.log.Debug().Err(werr).Msg("Failed to report status")
		}
	}

	label := strconv.Itoa(int(status))
	if errors.Is(err, errTransport) {
		label = "disconnected"
	}
	s.metrics.Requests.WithLabelValues(sess.route, label).Inc()

	sess.close(websocket.CloseNormalClosure, "")
	return status
}
