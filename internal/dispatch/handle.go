package dispatch

import (
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/pile"
	"github.com/mattjoyce/gwiz/internal/reply"
)

// handleLocked applies one classified line to the piles and machine state.
func (c *Context) handleLocked(r reply.Reply) {
	c.metrics.Reply(r.Kind.String())

	switch r.Kind {
	case reply.KindAck:
		c.retireLocked(r.Raw)
	case reply.KindHeartbeat:
		c.setReadyLocked(true)
	case reply.KindPosition:
		c.machine.Position = r.Position
		c.events.Publish(events.MachinePosition, events.PositionReport{Position: r.Position})
	case reply.KindTempReport:
		// handled below with acks carrying telemetry
	case reply.KindUnknownCommand:
		c.errs.push(r.Command)
		c.logger.Debug("unknown command reported", "command", r.Command)
	case reply.KindEcho:
		c.ack.Append(pile.AckEntry{Kind: pile.AckEcho, Payload: r.Raw})
	case reply.KindMiscStatus:
		c.ack.Append(pile.AckEntry{Kind: pile.AckStatus, Payload: r.Raw})
	case reply.KindReady:
		c.setReadyLocked(true)
		c.logger.Info("machine ready")
		c.addNoticeLocked(events.NoticeInfo, "Machine ready :-)")
		c.ack.Append(pile.AckEntry{Kind: pile.AckStatus, Payload: r.Raw})
	case reply.KindStart:
		c.setReadyLocked(true)
		c.setStatusLocked(StatusOK)
		c.ack.Append(pile.AckEntry{Kind: pile.AckStatus, Payload: r.Raw})
	default:
		c.ack.Append(pile.AckEntry{Kind: pile.AckStatus, Payload: r.Raw})
	}

	if r.HasTelemetry() {
		c.telemetryLocked(r)
	}
}

// retireLocked pops in-flight entries for one "ok": leading comments are
// retired as such, then the first real command is acknowledged or, when it
// matches the oldest unknown-command report, recorded as an error.
func (c *Context) retireLocked(raw string) {
	for {
		e, err := c.inFlight.Retire()
		if err != nil {
			c.metrics.Desync()
			c.logger.Warn("received reply but in-flight pile was empty", "reply", raw)
			return
		}
		if !e.Command.Transmittable() {
			c.ack.Append(pile.AckEntry{Entry: &e, Kind: pile.AckComment, Payload: string(e.Command)})
			c.metrics.Retired(metrics.ResultComment)
			continue
		}
		if c.errs.consume(e.Command) {
			c.ack.Append(pile.AckEntry{Entry: &e, Kind: pile.AckError, Payload: pile.PayloadUnknownCommand})
			c.metrics.Retired(metrics.ResultError)
			c.addNoticeLocked(events.NoticeError, "unknown command: "+string(e.Command))
			return
		}
		c.ack.Append(pile.AckEntry{Entry: &e, Kind: pile.AckOK, Payload: raw})
		c.metrics.Retired(metrics.ResultAck)
		return
	}
}

func (c *Context) telemetryLocked(r reply.Reply) {
	if r.TelemetryErr != nil {
		c.metrics.TelemetryError()
		c.logger.Info("discarding temperature report", "reply", r.Raw, "error", r.TelemetryErr)
		return
	}
	c.machine.Heaters = cloneHeaters(r.Telemetry.Heaters)
	c.machine.TelemetryAt = nowFunc()

	readings := make([]events.HeaterReading, len(r.Telemetry.Heaters))
	for i, h := range r.Telemetry.Heaters {
		readings[i] = events.HeaterReading{Label: h.Label, Current: h.Current}
		if h.HasTarget {
			target := h.Target
			readings[i].Target = &target
		}
		if h.HasPower {
			power := h.Power
			readings[i].Power = &power
		}
	}
	c.events.Publish(events.Telemetry, readings)
}

func (c *Context) setReadyLocked(ready bool) {
	if c.machine.Ready == ready {
		return
	}
	c.machine.Ready = ready
	c.publishStatusLocked()
}

// drainLocked moves entries into the in-flight pile while it has room and
// returns them in send order. Pending goes first; programs follow in load
// order when run mode is on. Exhausted programs are dropped.
func (c *Context) drainLocked() []gcode.Entry {
	if !c.machine.Ready {
		return nil
	}
	c.state = Draining

	var sent []gcode.Entry
	move := func(p *pile.Pending) {
		for p.Len() > 0 && !c.inFlight.Saturated() {
			e, err := p.Pop()
			if err != nil {
				return
			}
			c.inFlight.Push(e)
			sent = append(sent, e)
		}
	}

	// Settle can free slots held by comments; repeat until a pass moves
	// nothing.
	for {
		moved := len(sent)
		move(c.pending)
		if c.machine.Running {
			for _, p := range c.programs {
				move(p)
			}
		}
		c.inFlight.Settle()
		if len(sent) == moved || c.inFlight.Saturated() {
			break
		}
	}
	if c.machine.Running {
		c.dropFinishedProgramsLocked()
	}
	return sent
}

func (c *Context) dropFinishedProgramsLocked() {
	kept := c.programs[:0]
	for _, p := range c.programs {
		if p.Len() == 0 {
			c.logger.Info("program fully sent", "program", p.Name())
			c.addNoticeLocked(events.NoticeInfo, "finished sending "+p.Name())
			continue
		}
		kept = append(kept, p)
	}
	clear(c.programs[len(kept):])
	c.programs = kept
}
