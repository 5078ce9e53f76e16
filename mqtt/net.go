// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// ConnectionProvider is a function that returns a net.Conn connected to an
// MQTT server that is ready to read to and write from. Note that the returned
// net.Conn must be thread-safe (i.e., concurrent Write calls must not
// interleave).
type ConnectionProvider func(context.Context) (net.Conn, error)

type (
	// WebSocketOptions are the resolved WebSocket dial options.
	WebSocketOptions struct {
		TLSConfig        *tls.Config
		Header           http.Header
		HandshakeTimeout time.Duration
	}

	// WebSocketOption represents a single WebSocket dial option.
	WebSocketOption func(*WebSocketOptions)
)

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port uint16) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(
			ctx,
			"tcp",
			net.JoinHostPort(hostname, strconv.Itoa(int(port))),
		)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// BrokerURL builds the WebSocket URL of an MQTT server. The scheme is wss when
// secure is set and ws otherwise; an empty path defaults to "/mqtt".
func BrokerURL(secure bool, hostname string, port uint16, path string) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	if path == "" {
		path = "/mqtt"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	return fmt.Sprintf(
		"%s://%s%s",
		scheme,
		net.JoinHostPort(hostname, strconv.Itoa(int(port))),
		path,
	)
}

// WithTLSConfig sets the TLS configuration used for wss URLs.
func WithTLSConfig(config *tls.Config) WebSocketOption {
	return func(o *WebSocketOptions) { o.TLSConfig = config }
}

// WithHeader sets extra HTTP headers sent with the upgrade request.
func WithHeader(header http.Header) WebSocketOption {
	return func(o *WebSocketOptions) { o.Header = header }
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(o *WebSocketOptions) { o.HandshakeTimeout = timeout }
}

// WebSocketConnection is a ConnectionProvider that connects to an MQTT server
// over a WebSocket (ws or wss) using the "mqtt" subprotocol.
func WebSocketConnection(
	serverURL string,
	opts ...WebSocketOption,
) ConnectionProvider {
	o := WebSocketOptions{HandshakeTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context) (net.Conn, error) {
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "invalid WebSocket URL",
				wrapped: err,
			}
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, &InvalidArgumentError{
				message: fmt.Sprintf("unsupported URL scheme %q", u.Scheme),
			}
		}

		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			TLSClientConfig:  o.TLSConfig,
			HandshakeTimeout: o.HandshakeTimeout,
			Subprotocols:     []string{webSocketSubprotocol},
		}
		ws, res, err := d.DialContext(ctx, u.String(), o.Header)
		if err != nil {
			if res != nil {
				err = fmt.Errorf("%w (HTTP %s)", err, res.Status)
			}
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return &webSocketConn{ws: ws}, nil
	}
}

// webSocketConn adapts a message-oriented WebSocket to the byte stream paho
// expects. MQTT packets may span or share binary messages.
type webSocketConn struct {
	ws      *websocket.Conn
	reader  io.Reader
	readMu  sync.Mutex
	writeMu sync.Mutex
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) Close() error {
	return c.ws.Close()
}

func (c *webSocketConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *webSocketConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *webSocketConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *webSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
