package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"transit-ingest/internal/record"
)

// Metrics is the optional adapter to the process metrics collector.
type Metrics interface {
	SetConnected(connected bool)
	DecodeErrInc()
	PublishedInc()
	PublishErrInc()
}

// Handler receives one decoded record together with the callbacks that
// settle the underlying message. Exactly one of ack/nak must be called
// (the pipeline decides when, per its ack policy).
type Handler func(rec record.Raw, ack, nak func() error)

// Client wraps a NATS connection with a JetStream context. JetStream gives
// the at-least-once semantics the pipeline assumes: unacked or naked
// messages are redelivered.
type Client struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	metrics Metrics
}

func Connect(url, name string, m Metrics) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &Client{nc: nc, js: js, metrics: m}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Drain()
		c.nc.Close()
	}
}

// EnsureStream creates the stream for the subject when it does not exist.
func (c *Client) EnsureStream(name, subject string) error {
	_, err := c.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

// Subscribe registers a durable push subscription with explicit acks. A
// payload that fails to decode is naked for redelivery and never reaches
// the handler; content-level rejection happens downstream, after ack.
func (c *Client) Subscribe(subject, durable string, h Handler) (*nats.Subscription, error) {
	sub, err := c.js.Subscribe(subject, func(msg *nats.Msg) {
		rec, err := decodeRecord(msg.Data)
		if err != nil {
			log.Printf("message decode failed: %v", err)
			if c.metrics != nil {
				c.metrics.DecodeErrInc()
			}
			if err := msg.Nak(); err != nil {
				log.Printf("nak error: %v", err)
			}
			return
		}
		h(rec,
			func() error { return msg.Ack() },
			func() error { return msg.Nak() })
	}, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Publish sends one record as a JSON message on the subject.
func (c *Client) Publish(subject string, rec record.Raw) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = c.js.Publish(subject, b)
	if c.metrics != nil {
		if err != nil {
			c.metrics.PublishErrInc()
		} else {
			c.metrics.PublishedInc()
		}
	}
	return err
}

// decodeRecord parses a message payload with json.Number so integer fields
// keep their exact representation through validation.
func decodeRecord(data []byte) (record.Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec record.Raw
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
