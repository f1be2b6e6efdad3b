// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// =============================================================================
// IDS
// =============================================================================

// ID is a JSON-RPC request identifier.
//
// The client only ever issues numeric ids. String ids are accepted on input
// so that server-initiated requests round-trip, but they never match a
// pending client request.
type ID struct {
	num      int64
	str      string
	isString bool
}

// NumberID returns a numeric id.
func NumberID(n int64) ID {
	return ID{num: n}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{str: s, isString: true}
}

// Number returns the numeric value and whether the id is numeric.
func (id ID) Number() (int64, bool) {
	return id.num, !id.isString
}

// String renders the id for logs.
func (id ID) String() string {
	if id.isString {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be an integer or string: %s", data)
	}
	*id = NumberID(n)
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// Message is one of *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

// Request is a call that expects a Response with the same ID.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Response answers the Request with the same ID. Exactly one of Result and
// Error is meaningful; a nil Error means success.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *RPCError
}

// Notification is a one-way message with no ID.
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type wireNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{JSONRPC: JSONRPCVersion, ID: r.ID, Method: r.Method, Params: r.Params})
}

// MarshalJSON implements json.Marshaler. A successful response always
// carries a result member, null when Result is empty.
func (r *Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{JSONRPC: JSONRPCVersion, ID: r.ID, Error: r.Error}
	if r.Error == nil {
		w.Result = r.Result
		if len(w.Result) == 0 {
			w.Result = json.RawMessage("null")
		}
	}
	return json.Marshal(w)
}

// MarshalJSON implements json.Marshaler.
func (n *Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireNotification{JSONRPC: JSONRPCVersion, Method: n.Method, Params: n.Params})
}

// parseMessage classifies a frame body.
//
// A result or error member is considered present even when its value is
// null, which is how a response to a request with a void result looks on
// the wire. A null result decodes to a nil Result. A null or missing id on
// a response, sent by servers that could not read the request, yields the
// zero ID; no request is ever sent with it, so the response is dropped.
func parseMessage(body []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	rawID, hasID := fields["id"]
	rawMethod, hasMethod := fields["method"]
	_, hasResult := fields["result"]
	rawErr, hasError := fields["error"]

	if hasID && isNull(rawID) {
		hasID = false
	}

	var id ID
	if hasID {
		if err := json.Unmarshal(rawID, &id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	}

	var method string
	if hasMethod {
		if err := json.Unmarshal(rawMethod, &method); err != nil {
			return nil, fmt.Errorf("%w: method: %v", ErrProtocol, err)
		}
	}

	switch {
	case hasMethod && hasID:
		return &Request{ID: id, Method: method, Params: fields["params"]}, nil
	case hasMethod:
		return &Notification{Method: method, Params: fields["params"]}, nil
	case hasResult || hasError:
		resp := &Response{ID: id}
		if hasError && !isNull(rawErr) {
			var rpcErr RPCError
			if err := json.Unmarshal(rawErr, &rpcErr); err != nil {
				return nil, fmt.Errorf("%w: error member: %v", ErrProtocol, err)
			}
			resp.Error = &rpcErr
			return resp, nil
		}
		if raw := fields["result"]; !isNull(raw) {
			resp.Result = raw
		}
		return resp, nil
	default:
		return nil, ErrUnknownMessageShape
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
