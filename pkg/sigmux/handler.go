package sigmux

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
)

// getInspector validates a handle: in range, not a tombstone, and
// Running. Anything else yields nil.
func (a *Analyzer) getInspector(handle Handle) *Inspector {
	if handle < 0 || int(handle) >= len(a.inspectors) {
		return nil
	}

	insp := a.inspectors[handle]
	if insp != nil && insp.State() != StateRunning {
		return nil
	}

	return insp
}

// disposeInspectorHandle tombstones a slot. Handles are never reused.
func (a *Analyzer) disposeInspectorHandle(handle Handle) bool {
	if handle < 0 || int(handle) >= len(a.inspectors) {
		return false
	}

	if a.inspectors[handle] == nil {
		return false
	}

	a.inspectors[handle] = nil
	return true
}

// registerInspector appends the inspector to the table, marks it
// Running and schedules its worker task. On task push failure the
// handle is disposed again and registration fails.
func (a *Analyzer) registerInspector(insp *Inspector) (Handle, bool) {
	if insp.State() != StateCreated {
		return -1, false
	}

	a.inspectors = append(a.inspectors, insp)
	handle := Handle(len(a.inspectors) - 1)

	insp.setState(StateRunning)

	if !a.pool.pushTask(&workerTask{cb: a.inspectorTask, private: insp}) {
		a.disposeInspectorHandle(handle)
		return -1, false
	}

	return handle, true
}

// sweepHalted destroys Halted inspectors whose worker callback has
// already dropped them, leaving tombstones behind. Runs on the
// analyzer goroutine.
func (a *Analyzer) sweepHalted() {
	for i, insp := range a.inspectors {
		if insp == nil || insp.State() != StateHalted {
			continue
		}

		a.inspectors[i] = nil
		insp.Destroy()
		a.logger.Debug().Int("handle", i).Msg("reaped halted inspector")
	}
}

// handleInspectorMsg dispatches one control request, mutating it in
// place into the response, and writes the response to the output
// queue. Every failure becomes a response; the only error surfaced is
// a failed response write.
func (a *Analyzer) handleInspectorMsg(msg *InspectorMsg) error {
	var insp *Inspector
	start := time.Now()
	reqKind := msg.Kind

	switch msg.Kind {
	case KindOpen:
		newInsp, err := newInspector(float64(a.opts.SampleRate), a.opts.BufferSize, msg.Channel)
		if err != nil {
			a.logger.Error().Err(err).
				Float64("fc", msg.Channel.Fc).
				Float64("bw", msg.Channel.Bw).
				Msg("failed to open inspector")
			msg.Kind = KindError
			break
		}

		handle, ok := a.registerInspector(newInsp)
		if !ok {
			newInsp.Destroy()
			msg.Kind = KindError
			break
		}

		msg.Handle = handle

	case KindGetInfo:
		if insp = a.getInspector(msg.Handle); insp == nil {
			msg.Kind = KindWrongHandle
		} else {
			msg.Kind = KindInfo
			msg.Baud = insp.Baud()
		}

	case KindGetParams:
		if insp = a.getInspector(msg.Handle); insp == nil {
			msg.Kind = KindWrongHandle
		} else {
			msg.Kind = KindParams
			msg.Params = insp.Params()
		}

	case KindParams:
		if insp = a.getInspector(msg.Handle); insp == nil {
			msg.Kind = KindWrongHandle
		} else {
			insp.SetParams(msg.Params)
		}

	case KindClose:
		if insp = a.getInspector(msg.Handle); insp == nil {
			msg.Kind = KindWrongHandle
		} else {
			msg.InspectorID = insp.Params().InspectorID

			if insp.State() == StateHalted {
				// Already off its worker: safe to reap now.
				a.disposeInspectorHandle(msg.Handle)
				insp.Destroy()
			} else {
				// Still on a worker. Mark it halting so the next
				// callback drops it.
				insp.setState(StateHalting)
			}

			insp = nil
		}

	default:
		msg.Status = uint32(msg.Kind)
		msg.Kind = KindWrongKind
	}

	// Requests that referenced a live inspector echo its client id.
	if insp != nil {
		msg.InspectorID = insp.Params().InspectorID
	}

	a.writeAPI.WritePoint(influxdb2.NewPoint("control.request",
		map[string]string{
			"kind": reqKind.String(),
		},
		map[string]interface{}{
			"response":    msg.Kind.String(),
			"duration_us": time.Since(start).Microseconds(),
		}, start))

	return a.mqOut.Write(MsgTypeInspector, msg)
}
