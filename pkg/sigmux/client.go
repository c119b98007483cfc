package sigmux

import (
	"math/rand"

	"github.com/sigmux/sigmux/pkg/dsp/chandet"
)

// Client API. The async forms enqueue a request tagged with the
// caller's req_id; the blocking forms pick a fresh req_id, wait for
// the next INSPECTOR-typed response and verify it correlates.

func (a *Analyzer) writeRequest(msg *InspectorMsg) error {
	return a.mqIn.Write(MsgTypeInspector, msg)
}

// readInspectorMsg blocks until a control response is available,
// overtaking any queued sample batches.
func (a *Analyzer) readInspectorMsg() *InspectorMsg {
	return a.mqOut.ReadType(MsgTypeInspector).(*InspectorMsg)
}

// OpenAsync requests a new inspector over the given channel.
func (a *Analyzer) OpenAsync(ch chandet.Channel, reqID uint32) error {
	msg := newInspectorMsg(KindOpen, reqID)
	msg.Channel = ch
	return a.writeRequest(msg)
}

// Open creates an inspector and returns its handle.
func (a *Analyzer) Open(ch chandet.Channel) (Handle, error) {
	reqID := rand.Uint32()

	if err := a.OpenAsync(ch, reqID); err != nil {
		return -1, err
	}

	resp := a.readInspectorMsg()
	if resp.ReqID != reqID {
		return -1, ErrMismatchedReqID
	}
	if resp.Kind == KindError {
		return -1, ErrRequestFailed
	}
	if resp.Kind != KindOpen {
		return -1, ErrUnexpectedKind
	}

	return resp.Handle, nil
}

// CloseAsync requests teardown of an inspector.
func (a *Analyzer) CloseAsync(handle Handle, reqID uint32) error {
	msg := newInspectorMsg(KindClose, reqID)
	msg.Handle = handle
	return a.writeRequest(msg)
}

// Close tears an inspector down. The inspector stops producing
// samples at its next worker dispatch.
func (a *Analyzer) Close(handle Handle) error {
	reqID := rand.Uint32()

	if err := a.CloseAsync(handle, reqID); err != nil {
		return err
	}

	resp := a.readInspectorMsg()
	if resp.ReqID != reqID {
		return ErrMismatchedReqID
	}
	if resp.Kind == KindWrongHandle {
		return ErrWrongHandle
	}
	if resp.Kind != KindClose {
		return ErrUnexpectedKind
	}

	return nil
}

// GetInfoAsync requests the current baud estimates.
func (a *Analyzer) GetInfoAsync(handle Handle, reqID uint32) error {
	msg := newInspectorMsg(KindGetInfo, reqID)
	msg.Handle = handle
	return a.writeRequest(msg)
}

// GetInfo polls the blind baud estimators of an inspector.
func (a *Analyzer) GetInfo(handle Handle) (BaudResult, error) {
	reqID := rand.Uint32()

	if err := a.GetInfoAsync(handle, reqID); err != nil {
		return BaudResult{}, err
	}

	resp := a.readInspectorMsg()
	if resp.ReqID != reqID {
		return BaudResult{}, ErrMismatchedReqID
	}
	if resp.Kind == KindWrongHandle {
		return BaudResult{}, ErrWrongHandle
	}
	if resp.Kind != KindInfo {
		return BaudResult{}, ErrUnexpectedKind
	}

	return resp.Baud, nil
}

// GetParamsAsync requests the current inspector configuration.
func (a *Analyzer) GetParamsAsync(handle Handle, reqID uint32) error {
	msg := newInspectorMsg(KindGetParams, reqID)
	msg.Handle = handle
	return a.writeRequest(msg)
}

// GetParams fetches the current inspector configuration.
func (a *Analyzer) GetParams(handle Handle) (Params, error) {
	reqID := rand.Uint32()

	if err := a.GetParamsAsync(handle, reqID); err != nil {
		return Params{}, err
	}

	resp := a.readInspectorMsg()
	if resp.ReqID != reqID {
		return Params{}, ErrMismatchedReqID
	}
	if resp.Kind == KindWrongHandle {
		return Params{}, ErrWrongHandle
	}
	if resp.Kind != KindParams {
		return Params{}, ErrUnexpectedKind
	}

	return resp.Params, nil
}

// SetParamsAsync requests a configuration change.
func (a *Analyzer) SetParamsAsync(handle Handle, params Params, reqID uint32) error {
	msg := newInspectorMsg(KindParams, reqID)
	msg.Handle = handle
	msg.Params = params
	return a.writeRequest(msg)
}

// SetParams reconfigures a running inspector.
func (a *Analyzer) SetParams(handle Handle, params Params) error {
	reqID := rand.Uint32()

	if err := a.SetParamsAsync(handle, params, reqID); err != nil {
		return err
	}

	resp := a.readInspectorMsg()
	if resp.ReqID != reqID {
		return ErrMismatchedReqID
	}
	if resp.Kind == KindWrongHandle {
		return ErrWrongHandle
	}
	if resp.Kind != KindParams {
		return ErrUnexpectedKind
	}

	return nil
}

// ReadSamples blocks until a symbol batch is available.
func (a *Analyzer) ReadSamples() *SampleBatchMsg {
	return a.mqOut.ReadType(MsgTypeSamples).(*SampleBatchMsg)
}

// PollSamples is the non-blocking form of ReadSamples.
func (a *Analyzer) PollSamples() (*SampleBatchMsg, bool) {
	payload, ok := a.mqOut.PollType(MsgTypeSamples)
	if !ok {
		return nil, false
	}
	return payload.(*SampleBatchMsg), true
}
