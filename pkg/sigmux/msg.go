package sigmux

import (
	"errors"

	"github.com/sigmux/sigmux/pkg/dsp/chandet"
)

// Message types multiplexed over the analyzer queues.
const (
	// MsgTypeInspector carries *InspectorMsg control requests and
	// responses.
	MsgTypeInspector uint32 = iota
	// MsgTypeSamples carries *SampleBatchMsg symbol batches.
	MsgTypeSamples

	// Internal types. Halt tears down a queue reader, sweep triggers
	// a reap pass over the inspector table, task carries a worker
	// callback, buffer carries a source sample buffer to a consumer.
	msgTypeHalt
	msgTypeSweep
	msgTypeTask
	msgTypeBuffer
)

// InspectorMsgKind identifies a control request or response.
type InspectorMsgKind uint32

const (
	KindOpen InspectorMsgKind = iota
	KindGetInfo
	KindInfo
	KindGetParams
	KindParams
	KindClose
	KindError
	KindWrongHandle
	KindWrongKind
)

func (k InspectorMsgKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindGetInfo:
		return "get-info"
	case KindInfo:
		return "info"
	case KindGetParams:
		return "get-params"
	case KindParams:
		return "params"
	case KindClose:
		return "close"
	case KindError:
		return "error"
	case KindWrongHandle:
		return "wrong-handle"
	case KindWrongKind:
		return "wrong-kind"
	}
	return "unknown"
}

// Handle indexes the analyzer's inspector table. Handles are stable
// for the process lifetime; closed slots are never reused.
type Handle int32

// BaudResult carries the two blind baud estimates of an inspector.
type BaudResult struct {
	FAC float64 `json:"fac"`
	NLN float64 `json:"nln"`
}

// InspectorMsg is a control request that the handler mutates in place
// into the response. ReqID is chosen by the client and echoed back
// unchanged; Status holds the offending kind on a wrong-kind response.
type InspectorMsg struct {
	Kind        InspectorMsgKind
	Handle      Handle
	Channel     chandet.Channel
	Params      Params
	Baud        BaudResult
	InspectorID uint32
	ReqID       uint32
	Status      uint32
}

func newInspectorMsg(kind InspectorMsgKind, reqID uint32) *InspectorMsg {
	return &InspectorMsg{
		Kind:   kind,
		Handle: -1,
		ReqID:  reqID,
	}
}

// SampleBatchMsg is a batch of recovered symbol samples for one
// inspector, tagged with the client-assigned inspector id.
type SampleBatchMsg struct {
	InspectorID uint32
	Samples     []complex64
}

func newSampleBatchMsg(inspectorID uint32) *SampleBatchMsg {
	return &SampleBatchMsg{InspectorID: inspectorID}
}

func (m *SampleBatchMsg) append(sample complex64) {
	m.Samples = append(m.Samples, sample)
}

// Client-side errors surfaced by the blocking API.
var (
	ErrMismatchedReqID = errors.New("sigmux: response does not match request id")
	ErrUnexpectedKind  = errors.New("sigmux: unexpected response kind")
	ErrWrongHandle     = errors.New("sigmux: no such inspector handle")
	ErrRequestFailed   = errors.New("sigmux: request failed")
)
