package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/log"
)

// TLSMaterial bundles the certificate/CA pair a Server or client dial
// needs to mutually authenticate, mirroring cuemby-warren/pkg/security's
// LoadCertFromFile/LoadCACertFromFile split.
type TLSMaterial struct {
	Cert   tls.Certificate
	CAPool *x509.CertPool
}

// serverTLSConfig builds the server-side tls.Config, requesting (but
// not requiring at the handshake level) a client certificate. The
// Dispatcher performs no per-RPC auth check of its own: each handler
// receives the request's AuthHeader and MethodAuth and decides itself.
func serverTLSConfig(m TLSMaterial) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.Cert},
		ClientCAs:    m.CAPool,
		ClientAuth:   tls.RequestClientCert,
		MinVersion:   tls.VersionTLS13,
	}
}

// clientTLSConfig builds the client-side tls.Config for dialing a Server.
func clientTLSConfig(m TLSMaterial, serverName string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.Cert},
		RootCAs:      m.CAPool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS13,
	}
}

// Server accepts mTLS connections and dispatches framed requests to a
// Dispatcher, one goroutine per connection, one request at a time per
// connection (pipelining across connections, not within one).
type Server struct {
	listener   net.Listener
	dispatcher *Dispatcher
}

// Listen starts an mTLS listener on addr.
func Listen(addr string, tlsMaterial TLSMaterial, dispatcher *Dispatcher) (*Server, error) {
	ln, err := tls.Listen("tcp", addr, serverTLSConfig(tlsMaterial))
	if err != nil {
		return nil, herr.Wrap(herr.Transient, "listen for rpc connections", err)
	}
	return &Server{listener: ln, dispatcher: dispatcher}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		body, err := ReadFrame(conn)
		if err != nil {
			return
		}
		req, err := DecodeRequest(body)
		if err != nil {
			log.Errorf("rpc decode request", err)
			return
		}
		payload, err := s.dispatcher.Dispatch(req)
		resp := dispatchOutcome(payload, err)
		if werr := WriteFrame(conn, resp); werr != nil {
			log.Errorf("rpc write response", werr)
			return
		}
	}
}

// dispatchOutcome encodes a handler's result as a response_unit frame
// body: field 1 = ok payload, field 2 = error message, mutually exclusive.
func dispatchOutcome(payload []byte, err error) []byte {
	u := responseUnit(payload, err)
	return u.Marshal()
}

// Client dials one mTLS connection to a Server and sends framed
// requests sequentially, matching connectWithMTLS's single-connection
// client shape generalized from gRPC to the raw framing in this package.
type Client struct {
	conn net.Conn
}

// Dial connects to addr over mTLS.
func Dial(addr string, tlsMaterial TLSMaterial, serverName string) (*Client, error) {
	conn, err := tls.Dial("tcp", addr, clientTLSConfig(tlsMaterial, serverName))
	if err != nil {
		return nil, herr.Wrap(herr.Transient, "dial rpc server", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends req and blocks for its response on this connection. The
// caller is responsible for priority ordering across concurrent Calls
// via SendQueue; Call itself is a plain synchronous round trip.
func (c *Client) Call(req *Request) ([]byte, error) {
	if !req.markSerialized() {
		return nil, herr.New(herr.InvalidInput, "request not in Pending state")
	}
	if err := WriteUnit(c.conn, req.Marshal()); err != nil {
		return nil, herr.Wrap(herr.Transient, "send rpc request", err)
	}
	req.markInFlight()
	body, err := ReadFrame(c.conn)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, "read rpc response", err)
	}
	return decodeResponseOutcome(body)
}
