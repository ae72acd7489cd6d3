package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/fabricpilot/vanctl/internal/backbonelink"
	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/transport"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

// tcpLink is the production transport.Link backend: one TLS connection
// framed with a 4-byte big-endian length prefix around a JSON-encoded
// transport.Message. This module's dependency set carries no AMQP or other
// messaging client, so the frame format is hand-rolled over crypto/tls and
// net the way the collaborator in internal/cluster reaches for
// controller-runtime's unstructured client when no typed one is available.
type tcpLink struct {
	conn net.Conn
}

func newTCPLink(conn net.Conn) *tcpLink {
	return &tcpLink{conn: conn}
}

func (l *tcpLink) Send(ctx context.Context, msg transport.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(deadline)
	}
	_, err = l.conn.Write(frame)
	return err
}

// readLoop decodes length-prefixed frames off conn and delivers each to
// sess, until the connection closes.
func readLoop(conn net.Conn, sess *transport.Session) {
	defer conn.Close()
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			logging.Info("Transport", "link closed: %v", err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			logging.Info("Transport", "link closed mid-frame: %v", err)
			return
		}
		var msg transport.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			logging.Warn("Transport", "decoding frame: %v", err)
			continue
		}
		sess.Deliver(msg)
	}
}

// managementCredential loads the TLS client credential the controller dials
// backbone manage APs with: the ManagementController row's certificate,
// resolved to its cert-manager Secret through the cluster collaborator, the
// same ObjectName-keyed lookup internal/syncbridge's hashSecret uses.
func managementCredential(ctx context.Context, st *store.Store, coll cluster.Collaborator, namespace, controllerName string) (*tls.Config, error) {
	mc, err := store.GetManagementControllerByName(ctx, st.Queryer(), controllerName)
	if err != nil {
		return nil, fmt.Errorf("loading management controller %q: %w", controllerName, err)
	}
	if mc.CertificateID == nil {
		return nil, fmt.Errorf("management controller %q has no credential yet", controllerName)
	}
	cert, err := store.GetTlsCertificate(ctx, st.Queryer(), *mc.CertificateID)
	if err != nil {
		return nil, fmt.Errorf("loading certificate row for %q: %w", controllerName, err)
	}
	secret, err := coll.LoadSecret(ctx, cert.ObjectName, namespace)
	if err != nil {
		return nil, fmt.Errorf("loading credential secret %q: %w", cert.ObjectName, err)
	}
	keyPair, err := tls.X509KeyPair(secret.TLSCrt, secret.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("parsing credential keypair for %q: %w", controllerName, err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(secret.CACrt)
	return &tls.Config{Certificates: []tls.Certificate{keyPair}, RootCAs: pool}, nil
}

// dialBackbone builds the backbonelink.Dialer the link manager uses to open
// a session to a ready manage access point (§4.4). The management
// controller's credential is reloaded on every dial rather than cached, so
// a credential rotation takes effect on the link manager's next reconcile
// without restarting the process.
func dialBackbone(st *store.Store, coll cluster.Collaborator, namespace, controllerName string) backbonelink.Dialer {
	return func(ctx context.Context, host, port string) (*transport.Session, error) {
		tlsCfg, err := managementCredential(ctx, st, coll, namespace, controllerName)
		if err != nil {
			return nil, err
		}
		dialer := &tls.Dialer{Config: tlsCfg}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, fmt.Errorf("dialing manage AP %s:%s: %w", host, port, err)
		}
		link := newTCPLink(conn)
		sess := transport.NewSession(link, "")
		go readLoop(conn, sess)
		return sess, nil
	}
}
