package protocol

import (
	"encoding/json"
	"testing"

	"github.com/fabricpilot/vanctl/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchMessageRoutesHeartbeat(t *testing.T) {
	hb := NewHeartbeat("site-1", "backbone", "addr-1", map[string]string{"link-L1": "H1"})

	var received Heartbeat
	_, err := DispatchMessage(encode(t, hb), func(got Heartbeat) error {
		received = got
		return nil
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "site-1", received.Site)
	assert.Equal(t, "H1", received.Hashset["link-L1"])
}

func TestDispatchMessageRoutesGet(t *testing.T) {
	g := NewGet("site-1", "link-L1")

	_, err := DispatchMessage(encode(t, g), nil, func(got Get) (GetReply, error) {
		assert.Equal(t, "link-L1", got.StateKey)
		return GetReply{StatusCode: 200, StateKey: got.StateKey, Hash: "H1"}, nil
	}, nil)

	require.NoError(t, err)
}

func TestDispatchMessageGetNon200IsProtocolError(t *testing.T) {
	g := NewGet("site-1", "link-L1")

	_, err := DispatchMessage(encode(t, g), nil, func(got Get) (GetReply, error) {
		return GetReply{StatusCode: 404, StatusDescription: "no such key"}, nil
	}, nil)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProtocol))
}

func TestDispatchMessageRoutesClaim(t *testing.T) {
	c := NewClaim("inv-1", "m-1")

	reply, err := DispatchMessage(encode(t, c), nil, nil, func(got Claim) (ClaimReply, error) {
		assert.Equal(t, "inv-1", got.Claim)
		assert.Equal(t, "m-1", got.Name)
		return ClaimReply{StatusCode: 200, SiteID: "site-42"}, nil
	})

	require.NoError(t, err)
	claimReply, ok := reply.(ClaimReply)
	require.True(t, ok)
	assert.Equal(t, "site-42", claimReply.SiteID)
}

func TestDispatchMessageUnsupportedVersion(t *testing.T) {
	body := []byte(`{"version":2,"op":"HB"}`)
	_, err := DispatchMessage(body, func(Heartbeat) error { return nil }, nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProtocol))
}

func TestDispatchMessageUnknownOp(t *testing.T) {
	body := []byte(`{"version":1,"op":"BOGUS"}`)
	_, err := DispatchMessage(body, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProtocol))
	assert.Contains(t, err.Error(), "UnknownOp")
}
