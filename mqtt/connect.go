// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/kopi-greenbeans/mcmonitor/mqtt/internal"
)

// How long a graceful DISCONNECT may take before the connection is dropped.
const disconnectTimeout = 5 * time.Second

// manageConnection connects, waits for the connection to go down, and
// reconnects until the client is stopped or a fatal error occurs.
func (c *SessionClient) manageConnection(ctx context.Context) {
	defer close(c.stopped)

	for {
		var conn *connection
		err := c.options.ConnectionRetry.Start(
			ctx,
			"connect",
			func(ctx context.Context) (bool, error) {
				var err error
				conn, err = c.connect(ctx)
				return isRetryableConnectError(err), err
			},
		)
		if err != nil {
			if ctx.Err() == nil {
				c.fatal(ctx, err)
			}
			return
		}

		select {
		case <-ctx.Done():
			c.clearConnection()
			c.disconnect(conn)
			c.notifyDisconnect(ctx.Err())
			return

		case <-conn.down.Done():
			c.clearConnection()
			_ = conn.conn.Close()

			err := conn.down.Err()
			c.log.Warn(ctx, "connection lost", slog.String("error", err.Error()))
			c.notifyDisconnect(err)

			var fatal *FatalDisconnectError
			if errors.As(err, &fatal) {
				c.fatal(ctx, err)
				return
			}
		}
	}
}

// connect performs a single connection attempt.
func (c *SessionClient) connect(ctx context.Context) (*connection, error) {
	if c.options.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.ConnectionTimeout)
		defer cancel()
	}

	netConn, err := c.connectionProvider(ctx)
	if err != nil {
		return nil, err
	}

	conn := &connection{conn: netConn, down: internal.NewBackground()}
	conn.client = paho.NewClient(paho.ClientConfig{
		Conn:     netConn,
		ClientID: c.options.ClientID,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.onPublishReceived,
		},
		OnClientError: func(err error) {
			conn.down.Close(&ConnectionError{
				message: "connection error",
				wrapped: err,
			})
		},
		OnServerDisconnect: func(p *paho.Disconnect) {
			c.log.Packet(context.Background(), "disconnect", p)
			if isFatalDisconnectReasonCode(p.ReasonCode) {
				conn.down.Close(&FatalDisconnectError{p.ReasonCode})
			} else {
				conn.down.Close(&DisconnectError{p.ReasonCode})
			}
		},
	})

	packet := c.buildConnectPacket()
	c.log.Packet(ctx, "connect", packet)

	connack, err := conn.client.Connect(ctx, packet)
	if connack != nil {
		c.log.Packet(ctx, "connack", connack)
	}
	switch {
	case connack != nil && connack.ReasonCode >= 0x80:
		_ = netConn.Close()
		if isFatalConnackReasonCode(connack.ReasonCode) {
			return nil, &FatalConnackError{connack.ReasonCode}
		}
		return nil, &ConnackError{connack.ReasonCode}

	case err != nil:
		_ = netConn.Close()
		return nil, &ConnectionError{
			message: "error during MQTT connect",
			wrapped: err,
		}
	}

	c.log.Info(ctx, "connected", slog.String("client_id", c.ID()))

	if err := c.activate(ctx, conn); err != nil {
		_ = netConn.Close()
		return nil, err
	}

	for handler := range c.connectEventHandlers.All() {
		handler(&ConnectEvent{
			ReasonCode:     connack.ReasonCode,
			SessionPresent: connack.SessionPresent,
		})
	}
	return conn, nil
}

func (c *SessionClient) buildConnectPacket() *paho.Connect {
	packet := &paho.Connect{
		ClientID:   c.options.ClientID,
		KeepAlive:  c.options.KeepAlive,
		CleanStart: true,
	}
	if c.options.Username != "" {
		packet.UsernameFlag = true
		packet.Username = c.options.Username
	}
	if len(c.options.Password) > 0 {
		packet.PasswordFlag = true
		packet.Password = c.options.Password
	}
	return packet
}

// disconnect sends a graceful DISCONNECT and then closes the network
// connection regardless of the outcome.
func (c *SessionClient) disconnect(conn *connection) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		packet := &paho.Disconnect{ReasonCode: disconnectNormalDisconnection}
		c.log.Packet(context.Background(), "disconnect", packet)
		_ = conn.client.Disconnect(packet)
	}()

	select {
	case <-done:
	case <-time.After(disconnectTimeout):
	}
	conn.down.Close(nil)
	_ = conn.conn.Close()
}

func (c *SessionClient) setConnection(conn *connection) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
	close(c.up)
}

func (c *SessionClient) clearConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = nil
	c.up = make(chan struct{})
}

func (c *SessionClient) notifyDisconnect(err error) {
	for handler := range c.disconnectEventHandlers.All() {
		handler(&DisconnectEvent{Error: err})
	}
}

// fatal logs and reports an error that ends the session client.
func (c *SessionClient) fatal(ctx context.Context, err error) {
	c.log.Err(ctx, err)
	for handler := range c.fatalErrorHandlers.All() {
		go handler(err)
	}
}

func isRetryableConnectError(err error) bool {
	if err == nil {
		return false
	}
	var connack *FatalConnackError
	var arg *InvalidArgumentError
	return !errors.As(err, &connack) && !errors.As(err, &arg)
}

func (c *SessionClient) onPublishReceived(p paho.PublishReceived) (bool, error) {
	ctx := context.Background()
	c.log.Packet(ctx, "publish received", p.Packet)

	msg := &Message{
		Topic:   p.Packet.Topic,
		Payload: p.Packet.Payload,
		QoS:     p.Packet.QoS,
		Retain:  p.Packet.Retain,
	}
	if p.Packet.Properties != nil {
		msg.ContentType = p.Packet.Properties.ContentType
	}

	for handler := range c.messageHandlers.All() {
		handler(ctx, msg)
	}
	return true, nil
}
