// Package protocol defines the JSON messages exchanged with the companion
// script running inside the Discord client.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/phobologic/bdcompanion/internal/model"
)

// ErrUnknownResponse is returned by DecodeResponse for well-formed JSON
// objects that match none of the response shapes.
var ErrUnknownResponse = errors.New("unrecognized response shape")

// Request asks the peer to search for a module.
type Request struct {
	Action  model.Command `json:"action"`
	Query   []string      `json:"query"`
	Type    string        `json:"type,omitempty"`
	Options model.Options `json:"options,omitempty"`
}

// Response is one of StatusResponse, SourceResponse or MultipleResponse.
type Response interface {
	isResponse()
}

// StatusResponse is a one-line message for the status channel.
type StatusResponse struct {
	Message string
	Error   bool
}

// SourceResponse carries the source of a single module.
type SourceResponse struct {
	Source string
	ID     ModuleID
}

// MultipleResponse lists candidate modules for the user to choose from.
type MultipleResponse struct {
	Modules []Module
}

func (StatusResponse) isResponse()   {}
func (SourceResponse) isResponse()   {}
func (MultipleResponse) isResponse() {}

// Module is one candidate in a MultipleResponse.
type Module struct {
	ID      ModuleID `json:"id"`
	Exports []string `json:"exports"`
	Source  string   `json:"source"`
}

// ModuleID is a webpack module identifier. The peer sends numbers for
// webpack chunk ids and strings for named modules; both decode here.
type ModuleID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ModuleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ModuleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("module id: %w", err)
	}
	*id = ModuleID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id ModuleID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// wireResponse is the union of every response field.
type wireResponse struct {
	Message  *string         `json:"message"`
	Error    json.RawMessage `json:"error"`
	Source   *string         `json:"source"`
	ID       ModuleID        `json:"id"`
	Multiple bool            `json:"multiple"`
	Modules  []Module        `json:"modules"`
}

// DecodeResponse parses one frame from the peer. Shapes are tried from the
// most specific: a candidate list, then a single source, then a status
// message. Payloads that parse but match nothing yield ErrUnknownResponse.
func DecodeResponse(data []byte) (Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	switch {
	case w.Multiple && w.Modules != nil:
		return MultipleResponse{Modules: w.Modules}, nil
	case w.Source != nil && *w.Source != "":
		return SourceResponse{Source: *w.Source, ID: w.ID}, nil
	case w.Message != nil && *w.Message != "":
		return StatusResponse{Message: *w.Message, Error: truthy(w.Error)}, nil
	}
	return nil, ErrUnknownResponse
}

// truthy reports whether an error field is set. Some companion builds send
// the error text itself instead of a flag.
func truthy(raw json.RawMessage) bool {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case nil:
		return false
	}
	return true
}

// EncodeRequest serializes r as a single JSON frame.
func EncodeRequest(r Request) ([]byte, error) {
	if !r.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q", r.Action)
	}
	if r.Query == nil {
		r.Query = []string{}
	}
	return json.Marshal(r)
}
