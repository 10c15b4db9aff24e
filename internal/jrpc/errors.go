package jrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed call
type ErrorKind int

const (
	// KindTransport covers connection failures and timeouts
	KindTransport ErrorKind = iota
	// KindHTTP is an unexpected HTTP status or an exhausted attempt budget
	KindHTTP
	// KindRPC is a JSON-RPC error object in a successful HTTP response
	KindRPC
	// KindAuthentication means the credentials were rejected
	KindAuthentication
	// KindNotFound is an HTTP or RPC failure reporting that the target host does not exist
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindRPC:
		return "rpc"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

const hostNotFound = "host not found"

// Error is returned by every failed Client call
type Error struct {
	Kind   ErrorKind
	Method string

	// StatusCode is set for HTTP-level failures
	StatusCode int

	// Code and Data are set for JSON-RPC error objects
	Code int
	Data json.RawMessage

	// Message is the HTTP reason/body or the JSON-RPC message
	Message string

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Kind, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: %s (%d)", e.Method, e.Kind, e.Message, e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newTransportError(method string, err error) *Error {
	return &Error{Kind: KindTransport, Method: method, Err: err}
}

func newHTTPError(method string, status int, message string) *Error {
	kind := KindHTTP
	if isHostNotFound(message) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Method: method, StatusCode: status, Message: message}
}

// rpcErrorObject is the "error" member of a JSON-RPC response
type rpcErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func newRPCError(method string, obj rpcErrorObject) *Error {
	kind := KindRPC
	if isHostNotFound(obj.Message) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Method: method, Code: obj.Code, Message: obj.Message, Data: obj.Data}
}

func isHostNotFound(message string) bool {
	return strings.Contains(strings.ToLower(message), hostNotFound)
}

// KindOf reports the kind of err, or KindTransport for errors not produced by this package
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsNotFound reports whether err says the target host does not exist
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsAuthentication reports whether err is a rejected login
func IsAuthentication(err error) bool {
	return err != nil && KindOf(err) == KindAuthentication
}
