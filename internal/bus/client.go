// Package bus mirrors synthesized audio onto NATS so edge players can
// subscribe to sessions without going through the HTTP stream.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
)

// Client wraps the NATS connection with minimal helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("orpheusd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishChunk mirrors one audio chunk on tts.audio.<session>. Best
// effort: a slow or absent bus never stalls the HTTP stream.
func (c *Client) PublishChunk(chunk protocol.AudioChunk) {
	if c == nil {
		return
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		c.log.Warn("failed to marshal audio chunk", slog.String("error", err.Error()))
		return
	}
	subject := protocol.SubjectAudioPrefix + "." + chunk.SessionID
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish audio chunk", slog.String("error", err.Error()))
	}
}

// PublishDone signals session completion (or abort) on tts.done.
func (c *Client) PublishDone(sessionID string, completed bool) {
	if c == nil {
		return
	}
	msg := protocol.SynthesisDone{SessionID: sessionID, Completed: completed, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.conn.Publish(protocol.SubjectSynthesisDone, data); err != nil {
		c.log.Warn("failed to publish done event", slog.String("error", err.Error()))
	}
}
