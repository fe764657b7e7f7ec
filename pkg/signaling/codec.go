package signaling

import (
	"encoding/json"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// NewRequest builds a request Event carrying the given parameter payload.
func NewRequest(event, uuid string, param any) (Event, error) {
	raw, err := json.Marshal(param)
	if err != nil {
		return Event{}, ferrors.New("signaling.NewRequest", ferrors.CodeProtocolMalformed, err)
	}
	return Event{Event: event, UUID: uuid, Parameter: raw}, nil
}

// NewResponse builds a success response Event.
func NewResponse(event, uuid string, response any) (Event, error) {
	raw, err := json.Marshal(response)
	if err != nil {
		return Event{}, ferrors.New("signaling.NewResponse", ferrors.CodeProtocolMalformed, err)
	}
	return Event{Event: event, UUID: uuid, Response: raw}, nil
}

// NewErrorResponse builds a failure response Event carrying a wire error
// code derived from a ferrors.Code.
func NewErrorResponse(event, uuid string, code ferrors.Code, description string) Event {
	return Event{
		Event: event,
		UUID:  uuid,
		Error: &WireError{Code: int(code), Description: description},
	}
}

// DecodeParameter unmarshals an Event's Parameter field into dst.
func DecodeParameter(ev Event, dst any) error {
	if len(ev.Parameter) == 0 {
		return ferrors.New("signaling.DecodeParameter", ferrors.CodeProtocolMalformed, errMissingParameter)
	}
	if err := json.Unmarshal(ev.Parameter, dst); err != nil {
		return ferrors.New("signaling.DecodeParameter", ferrors.CodeProtocolMalformed, err)
	}
	return nil
}

// DecodeResponse unmarshals an Event's Response field into dst.
func DecodeResponse(ev Event, dst any) error {
	if len(ev.Response) == 0 {
		return ferrors.New("signaling.DecodeResponse", ferrors.CodeProtocolMalformed, errMissingResponse)
	}
	if err := json.Unmarshal(ev.Response, dst); err != nil {
		return ferrors.New("signaling.DecodeResponse", ferrors.CodeProtocolMalformed, err)
	}
	return nil
}

type protocolError string

func (e protocolError) Error() string { return string(e) }

const (
	errMissingParameter = protocolError("event has no parameter field")
	errMissingResponse  = protocolError("event has no response field")
)
