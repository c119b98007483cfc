package sigmux

import (
	"context"
	"math"
	"testing"

	"github.com/sigmux/sigmux/pkg/dsp/chandet"
)

type stubSource struct {
	rate int
}

func (s *stubSource) Start(ctx context.Context, out chan<- []complex64) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubSource) SampleRate() int { return s.rate }
func (s *stubSource) Stop() error     { return nil }

const analyzerTestRate = 250000

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(&stubSource{rate: analyzerTestRate}, Options{
		SampleRate: analyzerTestRate,
		BufferSize: 64,
		Workers:    1,
	})
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

// dispatch runs one control message through the handler and returns
// the response from the output queue.
func dispatch(t *testing.T, a *Analyzer, msg *InspectorMsg) *InspectorMsg {
	t.Helper()
	if err := a.handleInspectorMsg(msg); err != nil {
		t.Fatalf("handleInspectorMsg: %v", err)
	}
	payload, ok := a.mqOut.PollType(MsgTypeInspector)
	if !ok {
		t.Fatal("handler produced no response")
	}
	return payload.(*InspectorMsg)
}

func openTestInspector(t *testing.T, a *Analyzer, reqID uint32) Handle {
	t.Helper()
	msg := newInspectorMsg(KindOpen, reqID)
	msg.Channel = chandet.Channel{Fc: 100e3, Bw: 10e3}
	resp := dispatch(t, a, msg)
	if resp.Kind != KindOpen {
		t.Fatalf("open response kind = %v", resp.Kind)
	}
	return resp.Handle
}

// Scenario: open/close round trip; a second close of the same handle
// is rejected.
func TestOpenCloseRoundTrip(t *testing.T) {
	a := newTestAnalyzer(t)

	msg := newInspectorMsg(KindOpen, 42)
	msg.Channel = chandet.Channel{Fc: 100e3, Bw: 10e3}
	resp := dispatch(t, a, msg)

	if resp.Kind != KindOpen || resp.ReqID != 42 {
		t.Fatalf("open response kind=%v req=%d", resp.Kind, resp.ReqID)
	}
	if resp.Handle != 0 {
		t.Fatalf("first handle = %d, want 0", resp.Handle)
	}

	closeMsg := newInspectorMsg(KindClose, 43)
	closeMsg.Handle = 0
	resp = dispatch(t, a, closeMsg)
	if resp.Kind != KindClose || resp.ReqID != 43 {
		t.Fatalf("close response kind=%v req=%d", resp.Kind, resp.ReqID)
	}

	again := newInspectorMsg(KindClose, 44)
	again.Handle = 0
	resp = dispatch(t, a, again)
	if resp.Kind != KindWrongHandle || resp.ReqID != 44 {
		t.Fatalf("second close kind=%v req=%d, want wrong-handle", resp.Kind, resp.ReqID)
	}
}

// Scenario: set-params then get-params echoes the configuration and
// derives the symbol period from the source rate.
func TestParamsEcho(t *testing.T) {
	a := newTestAnalyzer(t)
	handle := openTestInspector(t, a, 1)

	setMsg := newInspectorMsg(KindParams, 2)
	setMsg.Handle = handle
	setMsg.Params = Params{
		InspectorID: 7,
		FcCtrl:      CarrierControlManual,
		Baud:        1200,
		SymPhase:    0.5,
	}
	resp := dispatch(t, a, setMsg)
	if resp.Kind != KindParams {
		t.Fatalf("set-params response kind = %v", resp.Kind)
	}
	if resp.InspectorID != 7 {
		t.Fatalf("inspector id echo = %d, want 7", resp.InspectorID)
	}

	getMsg := newInspectorMsg(KindGetParams, 3)
	getMsg.Handle = handle
	resp = dispatch(t, a, getMsg)
	if resp.Kind != KindParams {
		t.Fatalf("get-params response kind = %v", resp.Kind)
	}
	if resp.Params.Baud != 1200 || resp.Params.InspectorID != 7 {
		t.Fatalf("params echo = %+v", resp.Params)
	}

	insp := a.inspectors[handle]
	want := float64(analyzerTestRate) / 1200
	if got := insp.SymPeriod(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("symPeriod = %g, want %g", got, want)
	}
}

// Scenario: an unrecognized kind comes back as wrong-kind with the
// offending kind in status.
func TestWrongKind(t *testing.T) {
	a := newTestAnalyzer(t)

	msg := newInspectorMsg(InspectorMsgKind(0xFF), 5)
	resp := dispatch(t, a, msg)

	if resp.Kind != KindWrongKind {
		t.Fatalf("kind = %v, want wrong-kind", resp.Kind)
	}
	if resp.Status != 0xFF {
		t.Fatalf("status = %#x, want 0xff", resp.Status)
	}
}

func TestHandleValidation(t *testing.T) {
	a := newTestAnalyzer(t)
	handle := openTestInspector(t, a, 1)

	// Tombstone a second inspector to cover the disposed-slot case.
	second := openTestInspector(t, a, 2)
	a.inspectors[second].setState(StateHalted)
	a.sweepHalted()

	tests := []struct {
		name   string
		handle Handle
	}{
		{"negative", -1},
		{"beyond table", Handle(len(a.inspectors))},
		{"tombstone", second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := newInspectorMsg(KindGetParams, 9)
			msg.Handle = tt.handle
			resp := dispatch(t, a, msg)
			if resp.Kind != KindWrongHandle {
				t.Fatalf("kind = %v, want wrong-handle", resp.Kind)
			}
		})
	}

	// The surviving handle still validates.
	msg := newInspectorMsg(KindGetInfo, 10)
	msg.Handle = handle
	if resp := dispatch(t, a, msg); resp.Kind != KindInfo {
		t.Fatalf("kind = %v, want info", resp.Kind)
	}
}

func TestGetInfoReturnsBaudEstimates(t *testing.T) {
	a := newTestAnalyzer(t)
	handle := openTestInspector(t, a, 1)

	msg := newInspectorMsg(KindGetInfo, 2)
	msg.Handle = handle
	resp := dispatch(t, a, msg)

	if resp.Kind != KindInfo {
		t.Fatalf("kind = %v, want info", resp.Kind)
	}
	// Nothing has been fed, so both blind estimates are still zero.
	if resp.Baud.FAC != 0 || resp.Baud.NLN != 0 {
		t.Fatalf("baud = %+v, want zeros", resp.Baud)
	}
}

func TestHandlesAreNeverReused(t *testing.T) {
	a := newTestAnalyzer(t)

	first := openTestInspector(t, a, 1)
	a.inspectors[first].setState(StateHalted)
	a.sweepHalted()

	if a.inspectors[first] != nil {
		t.Fatal("sweep left halted inspector in table")
	}

	second := openTestInspector(t, a, 2)
	if second == first {
		t.Fatalf("handle %d reused after dispose", first)
	}
	if second != first+1 {
		t.Fatalf("second handle = %d, want %d", second, first+1)
	}
}

func TestClosedInspectorIsReapedOnceHalted(t *testing.T) {
	a := newTestAnalyzer(t)
	handle := openTestInspector(t, a, 1)

	// Close while running marks it halting: the worker callback will
	// drop it at the next dispatch.
	msg := newInspectorMsg(KindClose, 2)
	msg.Handle = handle
	resp := dispatch(t, a, msg)
	if resp.Kind != KindClose {
		t.Fatalf("close kind = %v", resp.Kind)
	}
	if got := a.inspectors[handle].State(); got != StateHalting {
		t.Fatalf("state = %v, want halting", got)
	}

	// Once the worker posts Halted, the sweep tombstones the slot.
	a.inspectors[handle].setState(StateHalted)
	a.sweepHalted()
	if a.inspectors[handle] != nil {
		t.Fatal("halted inspector not reaped")
	}
}

func TestSnapshotTracksTable(t *testing.T) {
	a := newTestAnalyzer(t)
	handle := openTestInspector(t, a, 1)
	a.publishSnapshot()

	statuses := a.StatusSnapshot().([]InspectorStatus)
	if len(statuses) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(statuses))
	}
	if statuses[0].Handle != handle || statuses[0].State != "running" {
		t.Fatalf("snapshot = %+v", statuses[0])
	}
}
