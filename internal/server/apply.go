package server

import (
	"context"
	"fmt"

	"github.com/ironsheep/image-filter-server/internal/filters"
	"github.com/ironsheep/image-filter-server/internal/imaging"
	"github.com/ironsheep/image-filter-server/internal/protocol"
	"github.com/ironsheep/image-filter-server/internal/store"
)

// applyState is a gate of the apply exchange.
type applyState int

const (
	stateAwaitFilterList applyState = iota
	stateValidateSchema
	stateAckFilterList
	stateAwaitImage
	stateValidateImage
	stateAckImage
	stateLog
	stateExecute
	stateRespond
	stateDone
)

var applyStateNames = [...]string{
	stateAwaitFilterList: "AwaitFilterList",
	stateValidateSchema:  "ValidateSchema",
	stateAckFilterList:   "AckFilterList",
	stateAwaitImage:      "AwaitImage",
	stateValidateImage:   "ValidateImage",
	stateAckImage:        "AckImage",
	stateLog:             "Log",
	stateExecute:         "Execute",
	stateRespond:         "Respond",
	stateDone:            "Done",
}

func (s applyState) String() string {
	if s < 0 || int(s) >= len(applyStateNames) {
		return fmt.Sprintf("applyState(%d)", int(s))
	}
	return applyStateNames[s]
}

// applyExchange carries the data accumulated across gates.
type applyExchange struct {
	sess   *session
	raw    []byte
	specs  []filters.Spec
	image  []byte
	result []byte
}

// handleApply drives one apply exchange through its gates. A returned
// error ends the exchange; its status is reported by the caller.
func (s *Server) handleApply(sess *session) error {
	x := &applyExchange{sess: sess}
	state := stateAwaitFilterList
	for state != stateDone {
		sess.log.Debug().Stringer("state", state).Msg("Apply gate")
		next, err := s.step(x, state)
		if err != nil {
			sess.log.Debug().Err(err).Stringer("state", state).Msg("Apply exchange stopped")
			return err
		}
		state = next
	}
	return nil
}

func (s *Server) step(x *applyExchange, state applyState) (applyState, error) {
	sess := x.sess
	switch state {
	case stateAwaitFilterList:
		raw, err := sess.read()
		if err != nil {
			return state, err
		}
		x.raw = raw
		return stateValidateSchema, nil

	case stateValidateSchema:
		specs, err := protocol.ParseFilterList(x.raw)
		if err != nil {
			return state, err
		}
		x.specs = specs
		return stateAckFilterList, nil

	case stateAckFilterList:
		if err := sess.writeStatus(protocol.OK()); err != nil {
			return state, err
		}
		return stateAwaitImage, nil

	case stateAwaitImage:
		img, err := sess.read()
		if err != nil {
			return state, err
		}
		x.image = img
		return stateValidateImage, nil

	case stateValidateImage:
		if err := validateImage(x.image); err != nil {
			return state, err
		}
		return stateAckImage, nil

	case stateAckImage:
		if err := sess.writeStatus(protocol.OK()); err != nil {
			return state, err
		}
		return stateLog, nil

	case stateLog:
		s.logUsage(sess, x.specs)
		return stateExecute, nil

	case stateExecute:
		// Nothing else is read from the client; from here on a read only
		// detects that it went away.
		sess.watchClose()

		p := s.factory.Pipeline(x.specs).Use(
			filters.NewLoggingHook(sess.log),
			s.metrics.Hook(),
		)
		result, err := p.Run(sess.ctx, x.image)
		if err != nil {
			if sess.ctx.Err() != nil {
				return state, fmt.Errorf("%w: %w", errTransport, err)
			}
			return state, err
		}
		x.result = result
		return stateRespond, nil

	case stateRespond:
		if err := sess.writeBinary(x.result); err != nil {
			return state, err
		}
		return stateDone, nil
	}
	return state, fmt.Errorf("unknown apply state %v", state)
}

// validateImage maps the sniffed format to the image gate's statuses.
func validateImage(img []byte) error {
	switch format := imaging.Classify(img); {
	case format.Supported():
		return nil
	case format == imaging.FormatNotImage:
		return protocol.Errorf(protocol.StatusInvalidImage, "File is not an image")
	default:
		return protocol.Errorf(protocol.StatusInvalidImageFormat, "Invalid image format: %s", format)
	}
}

// logUsage records the accepted request. A failed write is logged and
// counted but does not fail the exchange.
func (s *Server) logUsage(sess *session, specs []filters.Spec) {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Kind.String()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(sess.ctx), s.cfg.WriteTimeout)
	defer cancel()

	id, err := s.usage.Insert(ctx, store.UsageRecord{
		Timestamp:     s.now(),
		ClientAddress: sess.remote,
		Filters:       names,
	})
	if err != nil {
		s.metrics.UsageLogErrors.Inc()
		sess.log.Error().Err(err).Strs("filters", names).Msg("Failed to log usage")
		return
	}
	sess.log.Debug().Int64("record_id", id).Strs("filters", names).Msg("Usage logged")
}
