// Package protocol defines the messages exchanged between clients and the
// server, how a request is executed against a storage.Store, and how
// messages travel over a stream connection.
//
// Requests and responses are closed sum types: each variant is its own
// struct, and the unexported marker methods keep other packages from adding
// variants. Code that consumes them uses an exhaustive type switch.
package protocol

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/dreamware/bucketkv/internal/storage"
)

// Kind tags the active variant of a message on the wire
type Kind uint8

const (
	KindGet Kind = iota + 1
	KindPut
	KindAppend
	KindDelete
	KindMultiGet
	KindMultiPut

	KindGetResponse
	KindPutResponse
	KindAppendResponse
	KindDeleteResponse
	KindMultiGetResponse
	KindMultiPutResponse
	KindErrorResponse
)

var kindNames = map[Kind]string{
	KindGet:              "Get",
	KindPut:              "Put",
	KindAppend:           "Append",
	KindDelete:           "Delete",
	KindMultiGet:         "MultiGet",
	KindMultiPut:         "MultiPut",
	KindGetResponse:      "GetResponse",
	KindPutResponse:      "PutResponse",
	KindAppendResponse:   "AppendResponse",
	KindDeleteResponse:   "DeleteResponse",
	KindMultiGetResponse: "MultiGetResponse",
	KindMultiPutResponse: "MultiPutResponse",
	KindErrorResponse:    "ErrorResponse",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ErrUnknownKind is returned when a decoded message carries a tag that is
// not a variant of the expected type
var ErrUnknownKind = errors.New("unknown message kind")

// Request is one of GetRequest, PutRequest, AppendRequest, DeleteRequest,
// MultiGetRequest or MultiPutRequest
type Request interface {
	Kind() Kind
	isRequest()
}

type GetRequest struct{ Key string }
type PutRequest struct{ Key, Value string }
type AppendRequest struct{ Key, Value string }
type DeleteRequest struct{ Key string }
type MultiGetRequest struct{ Keys []string }
type MultiPutRequest struct{ Keys, Values []string }

func (GetRequest) Kind() Kind      { return KindGet }
func (PutRequest) Kind() Kind      { return KindPut }
func (AppendRequest) Kind() Kind   { return KindAppend }
func (DeleteRequest) Kind() Kind   { return KindDelete }
func (MultiGetRequest) Kind() Kind { return KindMultiGet }
func (MultiPutRequest) Kind() Kind { return KindMultiPut }

func (GetRequest) isRequest()      {}
func (PutRequest) isRequest()      {}
func (AppendRequest) isRequest()   {}
func (DeleteRequest) isRequest()   {}
func (MultiGetRequest) isRequest() {}
func (MultiPutRequest) isRequest() {}

// Response is one of the typed success responses or ErrorResponse
type Response interface {
	Kind() Kind
	isResponse()
}

type GetResponse struct{ Value string }
type PutResponse struct{}
type AppendResponse struct{}
type DeleteResponse struct{ Value string }
type MultiGetResponse struct{ Values []string }
type MultiPutResponse struct{}

// ErrorResponse reports an application-level failure. Transport failures
// never produce one; they surface as an error from the connection instead.
type ErrorResponse struct{ Msg string }

func (GetResponse) Kind() Kind      { return KindGetResponse }
func (PutResponse) Kind() Kind      { return KindPutResponse }
func (AppendResponse) Kind() Kind   { return KindAppendResponse }
func (DeleteResponse) Kind() Kind   { return KindDeleteResponse }
func (MultiGetResponse) Kind() Kind { return KindMultiGetResponse }
func (MultiPutResponse) Kind() Kind { return KindMultiPutResponse }
func (ErrorResponse) Kind() Kind    { return KindErrorResponse }

func (GetResponse) isResponse()      {}
func (PutResponse) isResponse()      {}
func (AppendResponse) isResponse()   {}
func (DeleteResponse) isResponse()   {}
func (MultiGetResponse) isResponse() {}
func (MultiPutResponse) isResponse() {}
func (ErrorResponse) isResponse()    {}

// Execute runs req against store and returns the matching response
// variant, or an ErrorResponse if the store reports a failure
func Execute(store storage.Store, req Request) Response {
	switch r := req.(type) {
	case GetRequest:
		v, err := store.Get(r.Key)
		if err != nil {
			return errorResponse(err)
		}
		return GetResponse{Value: v}
	case PutRequest:
		if err := store.Put(r.Key, r.Value); err != nil {
			return errorResponse(err)
		}
		return PutResponse{}
	case AppendRequest:
		if err := store.Append(r.Key, r.Value); err != nil {
			return errorResponse(err)
		}
		return AppendResponse{}
	case DeleteRequest:
		v, err := store.Delete(r.Key)
		if err != nil {
			return errorResponse(err)
		}
		return DeleteResponse{Value: v}
	case MultiGetRequest:
		vs, err := store.MultiGet(r.Keys)
		if err != nil {
			return errorResponse(err)
		}
		return MultiGetResponse{Values: vs}
	case MultiPutRequest:
		if err := store.MultiPut(r.Keys, r.Values); err != nil {
			return errorResponse(err)
		}
		return MultiPutResponse{}
	default:
		return ErrorResponse{Msg: errors.Wrapf(ErrUnknownKind, "%T", req).Error()}
	}
}

// ErrorMessage renders err the way clients see it. Store error kinds map
// to their bare message; anything else keeps its full text
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		return storage.ErrKeyNotFound.Error()
	case errors.Is(err, storage.ErrArityMismatch):
		return storage.ErrArityMismatch.Error()
	default:
		return err.Error()
	}
}

func errorResponse(err error) ErrorResponse {
	return ErrorResponse{Msg: ErrorMessage(err)}
}
