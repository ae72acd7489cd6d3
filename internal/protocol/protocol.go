// Package protocol implements the wire codec of §4.2: the three message
// kinds (HB, GET, CLAIM) exchanged over internal/transport sessions, and the
// dispatch routine that selects a handler for an inbound body.
package protocol

import (
	"encoding/json"

	"github.com/fabricpilot/vanctl/internal/apperr"
)

// Version is the only protocol version this controller speaks.
const Version = 1

// Op names the three operations on the wire.
type Op string

const (
	OpHeartbeat Op = "HB"
	OpGet       Op = "GET"
	OpClaim     Op = "CLAIM"
)

// envelope is used only to read the op field before dispatching to a
// concrete, fully-typed message.
type envelope struct {
	Version int `json:"version"`
	Op      Op  `json:"op"`
}

// Heartbeat is the HB message. A nil Hashset means "beacon only" (§4.3).
type Heartbeat struct {
	Version int               `json:"version"`
	Op      Op                `json:"op"`
	Site    string            `json:"site"`
	SClass  string            `json:"sclass"`
	Address string            `json:"address"`
	Hashset map[string]string `json:"hashset,omitempty"`
}

// NewHeartbeat builds a well-formed HB message.
func NewHeartbeat(site, sclass, address string, hashset map[string]string) Heartbeat {
	return Heartbeat{Version: Version, Op: OpHeartbeat, Site: site, SClass: sclass, Address: address, Hashset: hashset}
}

// Get is the GET pull request.
type Get struct {
	Version  int    `json:"version"`
	Op       Op     `json:"op"`
	Site     string `json:"site"`
	StateKey string `json:"statekey"`
}

// NewGet builds a well-formed GET message.
func NewGet(site, stateKey string) Get {
	return Get{Version: Version, Op: OpGet, Site: site, StateKey: stateKey}
}

// GetReply is the response to a GET. StatusCode 200 is success; any other
// code propagates to the caller as a ProtocolError (§4.2, §7).
type GetReply struct {
	StatusCode        int             `json:"statusCode"`
	StatusDescription string          `json:"statusDescription"`
	StateKey          string          `json:"statekey"`
	Hash              string          `json:"hash"`
	Data              json.RawMessage `json:"data,omitempty"`
}

// Claim is the CLAIM assertion a candidate member site sends on the claim
// address (§4.8).
type Claim struct {
	Version int    `json:"version"`
	Op      Op     `json:"op"`
	Claim   string `json:"claim"`
	Name    string `json:"name"`
}

// NewClaim builds a well-formed CLAIM message.
func NewClaim(claim, name string) Claim {
	return Claim{Version: Version, Op: OpClaim, Claim: claim, Name: name}
}

// OutgoingLink is one entry of a successful ClaimReply's OutgoingLinks.
type OutgoingLink struct {
	Host string `json:"host"`
	Port string `json:"port"`
	Cost int    `json:"cost"`
}

// ClaimReply is the response to a successful CLAIM.
type ClaimReply struct {
	StatusCode    int                    `json:"statusCode"`
	SiteID        string                 `json:"siteId"`
	OutgoingLinks []OutgoingLink         `json:"outgoingLinks"`
	SiteClient    map[string]interface{} `json:"siteClient"`
}

// ClaimFailure is the response to a rejected CLAIM.
type ClaimFailure struct {
	StatusCode  int    `json:"code"`
	Description string `json:"description"`
}

// HeartbeatHandler processes an inbound HB.
type HeartbeatHandler func(hb Heartbeat) error

// GetHandler processes an inbound GET and returns the reply body.
type GetHandler func(g Get) (GetReply, error)

// ClaimHandler processes an inbound CLAIM and returns the reply body.
type ClaimHandler func(c Claim) (ClaimReply, error)

// DispatchMessage validates the envelope version, selects the handler
// matching body's op, and raises UnknownOp otherwise (§4.2).
func DispatchMessage(body []byte, onHeartbeat HeartbeatHandler, onGet GetHandler, onClaim ClaimHandler) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Protocol("decoding message envelope: %v", err)
	}
	if env.Version != Version {
		return nil, apperr.Protocol("unsupported protocol version %d", env.Version)
	}

	switch env.Op {
	case OpHeartbeat:
		var hb Heartbeat
		if err := json.Unmarshal(body, &hb); err != nil {
			return nil, apperr.Protocol("decoding HB: %v", err)
		}
		if onHeartbeat == nil {
			return nil, nil
		}
		return nil, onHeartbeat(hb)

	case OpGet:
		var g Get
		if err := json.Unmarshal(body, &g); err != nil {
			return nil, apperr.Protocol("decoding GET: %v", err)
		}
		if onGet == nil {
			return GetReply{StatusCode: 500, StatusDescription: "no GET handler installed"}, nil
		}
		reply, err := onGet(g)
		if err != nil {
			return nil, err
		}
		if reply.StatusCode != 200 {
			return reply, apperr.Protocol("GET %s replied %d: %s", g.StateKey, reply.StatusCode, reply.StatusDescription)
		}
		return reply, nil

	case OpClaim:
		var c Claim
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, apperr.Protocol("decoding CLAIM: %v", err)
		}
		if onClaim == nil {
			return ClaimFailure{StatusCode: 500, Description: "no CLAIM handler installed"}, nil
		}
		return onClaim(c)

	default:
		return nil, apperr.Protocol("UnknownOp: %q", env.Op)
	}
}
