package main

import (
	"context"
	"encoding/json"

	"github.com/fabricpilot/vanctl/internal/protocol"
	"github.com/fabricpilot/vanctl/internal/statesync"
	"github.com/fabricpilot/vanctl/internal/syncbridge"
	"github.com/fabricpilot/vanctl/internal/transport"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

// attachSyncReceiver opens the fixed sync address on sess, routing inbound
// HB into the state-sync engine and inbound GET into bridge's local-state
// answers (§4.1, §4.3). It is attached to every backbone session the link
// manager reports, the same way internal/claim's server attaches its own
// fixed-address receiver.
func attachSyncReceiver(sess *transport.Session, address string, engine *statesync.Engine, bridge *syncbridge.Bridge) *transport.Receiver {
	return sess.OpenReceiver(address, func(msg transport.Message) {
		ctx := context.Background()

		reply, err := protocol.DispatchMessage(msg.Body,
			func(hb protocol.Heartbeat) error {
				engine.HandleHeartbeat(ctx, hb)
				return nil
			},
			func(g protocol.Get) (protocol.GetReply, error) {
				hash, data, err := bridge.OnStateRequest(ctx, g.Site, g.StateKey)
				if err != nil {
					return protocol.GetReply{StatusCode: 500, StatusDescription: err.Error(), StateKey: g.StateKey}, nil
				}
				return protocol.GetReply{StatusCode: 200, StateKey: g.StateKey, Hash: hash, Data: data}, nil
			},
			nil,
		)
		if err != nil {
			logging.Warn("Transport", "sync message dispatch: %v", err)
		}
		if msg.Correlation == "" || reply == nil {
			return
		}

		body, err := json.Marshal(reply)
		if err != nil {
			logging.Error("Transport", err, "encoding sync reply")
			return
		}
		if err := sess.Reply(ctx, msg.ReplyTo, msg.Correlation, body, nil); err != nil {
			logging.Error("Transport", err, "sending sync reply")
		}
	}, nil)
}
