package broker

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Meander-Cloud/go-quickplay/lobby"
)

const (
	SubjectPrefix = "quickplay.match."
	SubjectAll    = SubjectPrefix + "*"
)

// Publisher is the part of *nats.Conn the broker writes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Broker forwards match lifecycle events to the game session side.
type Broker struct {
	nc        *nats.Conn
	pub       Publisher
	logPrefix string
}

func Connect(url string, name string, logPrefix string) (*Broker, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		err = fmt.Errorf("%s: failed to connect to broker at %s, err=%w", logPrefix, url, err)
		log.Printf("%s", err.Error())
		return nil, err
	}

	log.Printf("%s: connected to broker at %s", logPrefix, nc.ConnectedUrl())

	b := newBroker(nc, logPrefix)
	b.nc = nc
	return b, nil
}

func newBroker(pub Publisher, logPrefix string) *Broker {
	return &Broker{
		nc:        nil,
		pub:       pub,
		logPrefix: logPrefix,
	}
}

func (b *Broker) Close() {
	if b.nc == nil {
		return
	}
	b.nc.Close()
	log.Printf("%s: broker connection closed", b.logPrefix)
}

// Subject maps an event kind to its subject, "" for kinds never published.
func Subject(kind lobby.MatchEventKind) string {
	switch kind {
	case lobby.MatchEventFormed,
		lobby.MatchEventStarted,
		lobby.MatchEventDissolved:
		return SubjectPrefix + strings.ToLower(kind.String())
	default:
		return ""
	}
}

// invoked on arbiter goroutine
//
// MatchEvent implements lobby.EventSink. Publishing only buffers inside the
// nats client, so the arbiter is not held up by the network.
func (b *Broker) MatchEvent(ev *lobby.MatchEvent) {
	subject := Subject(ev.Kind)
	if subject == "" {
		log.Printf("%s: match %d, not publishing %s", b.logPrefix, ev.MatchID, ev.Kind)
		return
	}

	data, err := msgpack.Marshal(ev)
	if err != nil {
		log.Printf("%s: match %d, msgpack failed to encode %s, err=%s", b.logPrefix, ev.MatchID, ev.Kind, err.Error())
		return
	}

	err = b.pub.Publish(subject, data)
	if err != nil {
		log.Printf("%s: match %d, failed to publish to %s, err=%s", b.logPrefix, ev.MatchID, subject, err.Error())
		return
	}
}

func DecodeMatchEvent(data []byte) (*lobby.MatchEvent, error) {
	ev := new(lobby.MatchEvent)
	err := msgpack.Unmarshal(data, ev)
	if err != nil {
		return nil, fmt.Errorf("msgpack failed to decode MatchEvent, err=%w", err)
	}
	return ev, nil
}

// Subscribe delivers every match event published by any lobby to fn, on
// the nats client's delivery goroutine.
func (b *Broker) Subscribe(fn func(*lobby.MatchEvent)) (*nats.Subscription, error) {
	if b.nc == nil {
		err := fmt.Errorf("%s: broker not connected", b.logPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	return b.nc.Subscribe(
		SubjectAll,
		func(msg *nats.Msg) {
			ev, err := DecodeMatchEvent(msg.Data)
			if err != nil {
				log.Printf("%s: %s: %s", b.logPrefix, msg.Subject, err.Error())
				return
			}
			fn(ev)
		},
	)
}
