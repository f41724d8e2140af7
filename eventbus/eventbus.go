// Package eventbus broadcasts engine batch/cell-change events over a
// ZeroMQ PUB/SUB channel, so external processes (dashboards, loggers, a
// second gridcore instance mirroring a sheet) can observe a sheet's
// mutations without holding a reference to its engine.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-zeromq/zmq4"

	"github.com/vimeh/gridcore/engine"
)

// Envelope wraps one engine event with the sheet it came from, so a
// subscriber listening across sheets can tell them apart.
type Envelope struct {
	Sheet string       `json:"sheet"`
	Event engine.Event `json:"event"`
}

// Publisher binds a PUB socket and republishes every event from the
// engines attached to it, each under its own topic frame.
type Publisher struct {
	sock zmq4.Socket
}

// NewPublisher binds a PUB socket at addr (e.g. "tcp://*:5556" or
// "inproc://sheet-events"). The caller is responsible for calling Close.
func NewPublisher(ctx context.Context, addr string) (*Publisher, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("eventbus: bind %s: %w", addr, err)
	}
	return &Publisher{sock: sock}, nil
}

// Attach registers a listener on eng that republishes every event it
// fires under the given sheet name as the topic.
func (p *Publisher) Attach(sheet string, eng *engine.Engine) engine.ListenerHandle {
	return eng.AddListener(func(evt engine.Event) {
		p.publish(sheet, evt)
	})
}

func (p *Publisher) publish(sheet string, evt engine.Event) {
	payload, err := json.Marshal(Envelope{Sheet: sheet, Event: evt})
	if err != nil {
		return
	}
	msg := zmq4.NewMsgFrom([]byte(sheet), payload)
	_ = p.sock.Send(msg)
}

// Close releases the underlying socket.
func (p *Publisher) Close() error {
	return p.sock.Close()
}

// Subscriber connects a SUB socket filtered to one or more topics.
type Subscriber struct {
	sock zmq4.Socket
}

// NewSubscriber dials addr and subscribes to every topic given (an empty
// topic list subscribes to everything).
func NewSubscriber(ctx context.Context, addr string, topics ...string) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(addr); err != nil {
		return nil, fmt.Errorf("eventbus: dial %s: %w", addr, err)
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			return nil, fmt.Errorf("eventbus: subscribe %q: %w", topic, err)
		}
	}
	return &Subscriber{sock: sock}, nil
}

// Next blocks until the next event arrives and returns its envelope.
func (s *Subscriber) Next() (Envelope, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		return Envelope{}, err
	}
	if len(msg.Frames) < 2 {
		return Envelope{}, fmt.Errorf("eventbus: malformed message: %d frames", len(msg.Frames))
	}
	var env Envelope
	if err := json.Unmarshal(msg.Frames[1], &env); err != nil {
		return Envelope{}, fmt.Errorf("eventbus: decode: %w", err)
	}
	return env, nil
}

// Close releases the underlying socket.
func (s *Subscriber) Close() error {
	return s.sock.Close()
}
