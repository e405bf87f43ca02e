package relay

import (
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/chatrelay/internal/protocol"
	"github.com/cory-johannsen/chatrelay/internal/session"
)

// Result summarizes how one inbound datagram was dispatched.
type Result struct {
	Kind protocol.Kind
	// SessionID is the id the outbound frame carried, or the id that was
	// rejected.
	SessionID int32
	// Sent counts recipients the frame was written to.
	Sent int
	// Failed counts recipients whose write returned an error.
	Failed int
}

// Handle processes one datagram received from sender: it decodes the frame,
// classifies it, updates the registry, and writes the outbound frame to
// every recipient. Send failures are logged and do not stop the fan-out.
//
// Handle may be called before Serve; with no socket bound every recipient
// is counted in Result.Failed.
//
// Postcondition: Returns the dispatch summary and, for a dropped or anomalous
// message, one of protocol.ErrShortFrame, session.ErrFull, or
// session.ErrNotFound wrapped. None of these are fatal to the loop.
func (r *Relay) Handle(datagram []byte, sender netip.AddrPort) (Result, error) {
	f, err := protocol.Decode(datagram)
	if err != nil {
		r.logger.Warn("dropping malformed datagram",
			zap.String("from", sender.String()),
			zap.Int("bytes", len(datagram)),
			zap.Error(err),
		)
		return Result{}, err
	}

	var trace string
	if r.cfg.Debug {
		trace = uuid.NewString()
		r.logger.Debug("received",
			zap.String("datagram", trace),
			zap.String("from", sender.String()),
			zap.Object("frame", logFrame(f)),
		)
	}

	msg := protocol.Classify(f)
	switch msg.Kind {
	case protocol.KindJoin:
		return r.handleJoin(msg, sender, trace)
	case protocol.KindQuit:
		return r.handleQuit(msg, trace)
	default:
		return r.handleNormal(msg, trace)
	}
}

func (r *Relay) handleJoin(msg protocol.Message, sender netip.AddrPort, trace string) (Result, error) {
	res := Result{Kind: protocol.KindJoin}
	id, err := r.registry.Allocate(sender)
	if err != nil {
		r.logger.Warn("maximum number of clients reached",
			zap.String("from", sender.String()),
			zap.Int("capacity", r.registry.Capacity()),
		)
		return res, err
	}
	res.SessionID = id
	r.logger.Info("session joined",
		zap.Int32("id", id),
		zap.String("endpoint", sender.String()),
		zap.Int("sessions", r.registry.Len()),
	)

	out := protocol.Frame{ID: id, Field1: protocol.CommandJoin, Field2: msg.Frame.Field2}
	r.broadcast(&res, out, r.registry.Active(), trace)
	return res, nil
}

func (r *Relay) handleQuit(msg protocol.Message, trace string) (Result, error) {
	res := Result{Kind: protocol.KindQuit, SessionID: msg.SessionID}

	// The departing session receives its own QUIT, so fan out before release.
	out := protocol.Frame{ID: msg.SessionID, Field1: protocol.CommandQuit, Field2: msg.Frame.Field2}
	r.broadcast(&res, out, r.registry.Active(), trace)

	if err := r.registry.Release(msg.SessionID); err != nil {
		r.logger.Warn("quit for inactive session",
			zap.Int32("id", msg.SessionID),
			zap.Int("recipients", res.Sent+res.Failed),
			zap.Error(err),
		)
		return res, err
	}
	r.logger.Info("session quit",
		zap.Int32("id", msg.SessionID),
		zap.Int("sessions", r.registry.Len()),
	)
	return res, nil
}

func (r *Relay) handleNormal(msg protocol.Message, trace string) (Result, error) {
	res := Result{Kind: protocol.KindNormal, SessionID: msg.SessionID}

	active := r.registry.Active()
	recipients := make([]session.Session, 0, len(active))
	for _, s := range active {
		if s.ID != msg.SessionID {
			recipients = append(recipients, s)
		}
	}
	r.broadcast(&res, msg.Frame, recipients, trace)
	return res, nil
}

// broadcast encodes f once and writes it to each recipient, counting
// successes and failures in res.
func (r *Relay) broadcast(res *Result, f protocol.Frame, recipients []session.Session, trace string) {
	if err := protocol.EncodeInto(r.sendBuf, f); err != nil {
		r.logger.Error("encoding outbound frame", zap.Object("frame", logFrame(f)), zap.Error(err))
		res.Failed = len(recipients)
		return
	}
	if r.cfg.Debug {
		r.logger.Debug("sending",
			zap.String("datagram", trace),
			zap.Object("frame", logFrame(f)),
			zap.Int("recipients", len(recipients)),
		)
	}

	conn := r.currentConn()
	if conn == nil {
		res.Failed += len(recipients)
		if len(recipients) > 0 {
			r.logger.Error("sending frame",
				zap.Object("frame", logFrame(f)),
				zap.Int("recipients", len(recipients)),
				zap.Error(errNotServing),
			)
		}
		return
	}

	for _, s := range recipients {
		if _, err := conn.WriteToUDPAddrPort(r.sendBuf, s.Endpoint); err != nil {
			res.Failed++
			r.logger.Error("sending frame",
				zap.Int32("to_id", s.ID),
				zap.String("to", s.Endpoint.String()),
				zap.Error(fmt.Errorf("writing to session %d: %w", s.ID, err)),
			)
			continue
		}
		res.Sent++
	}
}

// logFrame renders a frame as a structured log object.
type logFrame protocol.Frame

func (f logFrame) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt32("id", f.ID)
	enc.AddString("field1", f.Field1)
	enc.AddString("field2", f.Field2)
	return nil
}
