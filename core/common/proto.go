package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single store command or its reply. Which fields are
// used depends on the request type and on the direction. The dispatcher
// itself never inspects a Message: the serializer package turns it into the
// opaque payload bytes the connection layer carries.
type Message struct {
	// Type of the request this message belongs to
	ReqType RequestType `json:"req_type"`

	// Request fields
	Key  string   `json:"key,omitempty"`  // Used for: Get, Set, Del, Has
	Args [][]byte `json:"args,omitempty"` // Additional command arguments

	// Reply fields
	Value []byte `json:"value,omitempty"` // Used for: Get, Custom replies
	Ok    bool   `json:"ok,omitempty"`    // Used for: Has, Set, Del replies
	Err   string `json:"err,omitempty"`   // Empty if no error
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{ReqType: ReqGet, Key: key}
}

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{ReqType: ReqSet, Key: key, Args: [][]byte{value}}
}

// NewDelRequest creates a new Del request
func NewDelRequest(key string) *Message {
	return &Message{ReqType: ReqDel, Key: key}
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{ReqType: ReqHas, Key: key}
}

// NewPingRequest creates a new Ping request
func NewPingRequest() *Message {
	return &Message{ReqType: ReqPing}
}

// NewCustomRequest creates a request with a raw argument vector, used for
// commands the core has no dedicated constructor for.
func NewCustomRequest(args ...[]byte) *Message {
	return &Message{ReqType: ReqCustom, Args: args}
}

// NewValueReply creates a reply carrying a value
func NewValueReply(reqType RequestType, value []byte, ok bool) *Message {
	return &Message{ReqType: reqType, Value: value, Ok: ok}
}

// NewOkReply creates a reply signalling success without a value
func NewOkReply(reqType RequestType, ok bool) *Message {
	return &Message{ReqType: reqType, Ok: ok}
}

// NewErrorReply creates a reply carrying a server-side error
func NewErrorReply(reqType RequestType, err string) *Message {
	return &Message{ReqType: reqType, Err: err}
}

// --------------------------------------------------------------------------
// Request Type Definition
// --------------------------------------------------------------------------

// RequestType identifies the store command a Message encodes.
type RequestType uint8

// String returns the string representation of a RequestType.
func (t RequestType) String() string {
	switch t {
	case ReqGet:
		return "get"
	case ReqSet:
		return "set"
	case ReqDel:
		return "del"
	case ReqHas:
		return "has"
	case ReqPing:
		return "ping"
	case ReqCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for RequestType.
// This allows RequestType to be serialized as a string in JSON.
func (t RequestType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for RequestType.
// This allows RequestType to be deserialized from a string in JSON.
func (t *RequestType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to RequestType
	switch s {
	case "get":
		*t = ReqGet
	case "set":
		*t = ReqSet
	case "del":
		*t = ReqDel
	case "has":
		*t = ReqHas
	case "ping":
		*t = ReqPing
	case "custom":
		*t = ReqCustom
	default:
		return fmt.Errorf("unknown request type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Request Type Constants
// --------------------------------------------------------------------------

const (
	ReqUnknown RequestType = iota

	ReqGet  // Get a value by key
	ReqSet  // Set a key-value pair
	ReqDel  // Delete a key-value pair
	ReqHas  // Check if a key exists
	ReqPing // Liveness probe

	ReqCustom // Raw argument vector, interpreted by the backend
)
