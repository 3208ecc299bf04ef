package protocol

import (
	"github.com/cockroachdb/errors"
)

// Envelope is the flat wire shape shared by every message. Kind selects
// which of the other fields are meaningful.
type Envelope struct {
	Kind   Kind     `cbor:"1,keyasint" json:"kind"`
	Key    string   `cbor:"2,keyasint,omitempty" json:"key,omitempty"`
	Value  string   `cbor:"3,keyasint,omitempty" json:"value,omitempty"`
	Keys   []string `cbor:"4,keyasint,omitempty" json:"keys,omitempty"`
	Values []string `cbor:"5,keyasint,omitempty" json:"values,omitempty"`
	Msg    string   `cbor:"6,keyasint,omitempty" json:"msg,omitempty"`
}

// RequestEnvelope flattens a request variant
func RequestEnvelope(req Request) (*Envelope, error) {
	switch r := req.(type) {
	case GetRequest:
		return &Envelope{Kind: KindGet, Key: r.Key}, nil
	case PutRequest:
		return &Envelope{Kind: KindPut, Key: r.Key, Value: r.Value}, nil
	case AppendRequest:
		return &Envelope{Kind: KindAppend, Key: r.Key, Value: r.Value}, nil
	case DeleteRequest:
		return &Envelope{Kind: KindDelete, Key: r.Key}, nil
	case MultiGetRequest:
		return &Envelope{Kind: KindMultiGet, Keys: r.Keys}, nil
	case MultiPutRequest:
		return &Envelope{Kind: KindMultiPut, Keys: r.Keys, Values: r.Values}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "request %T", req)
	}
}

// Request rebuilds the request variant carried by e
func (e *Envelope) Request() (Request, error) {
	switch e.Kind {
	case KindGet:
		return GetRequest{Key: e.Key}, nil
	case KindPut:
		return PutRequest{Key: e.Key, Value: e.Value}, nil
	case KindAppend:
		return AppendRequest{Key: e.Key, Value: e.Value}, nil
	case KindDelete:
		return DeleteRequest{Key: e.Key}, nil
	case KindMultiGet:
		return MultiGetRequest{Keys: e.Keys}, nil
	case KindMultiPut:
		return MultiPutRequest{Keys: e.Keys, Values: e.Values}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "request %s", e.Kind)
	}
}

// ResponseEnvelope flattens a response variant
func ResponseEnvelope(resp Response) (*Envelope, error) {
	switch r := resp.(type) {
	case GetResponse:
		return &Envelope{Kind: KindGetResponse, Value: r.Value}, nil
	case PutResponse:
		return &Envelope{Kind: KindPutResponse}, nil
	case AppendResponse:
		return &Envelope{Kind: KindAppendResponse}, nil
	case DeleteResponse:
		return &Envelope{Kind: KindDeleteResponse, Value: r.Value}, nil
	case MultiGetResponse:
		return &Envelope{Kind: KindMultiGetResponse, Values: r.Values}, nil
	case MultiPutResponse:
		return &Envelope{Kind: KindMultiPutResponse}, nil
	case ErrorResponse:
		return &Envelope{Kind: KindErrorResponse, Msg: r.Msg}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "response %T", resp)
	}
}

// Response rebuilds the response variant carried by e
func (e *Envelope) Response() (Response, error) {
	switch e.Kind {
	case KindGetResponse:
		return GetResponse{Value: e.Value}, nil
	case KindPutResponse:
		return PutResponse{}, nil
	case KindAppendResponse:
		return AppendResponse{}, nil
	case KindDeleteResponse:
		return DeleteResponse{Value: e.Value}, nil
	case KindMultiGetResponse:
		values := e.Values
		if values == nil {
			values = []string{}
		}
		return MultiGetResponse{Values: values}, nil
	case KindMultiPutResponse:
		return MultiPutResponse{}, nil
	case KindErrorResponse:
		return ErrorResponse{Msg: e.Msg}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "response %s", e.Kind)
	}
}
