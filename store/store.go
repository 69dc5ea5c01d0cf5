package store

import (
	"fmt"

	m "github.com/Meander-Cloud/go-quickplay/message"
)

// ID is the stable arena index of a message. Queues hold IDs, never the
// message itself.
type ID uint64

type Queue uint8

const (
	QueueReceived   Queue = 0
	QueueSending    Queue = 1
	QueuePendingAck Queue = 2
)

func (q Queue) String() string {
	switch q {
	case QueueReceived:
		return "Received"
	case QueueSending:
		return "Sending"
	case QueuePendingAck:
		return "PendingAck"
	default:
		return "Unknown Queue"
	}
}

var (
	ErrNotFound     = fmt.Errorf("message not found")
	ErrInvalidQueue = fmt.Errorf("invalid queue")
	ErrOccupied     = fmt.Errorf("connection already has a message in reassembly")
)

type entry struct {
	msg  *m.Message
	refs uint8 // number of queue slots referencing this entry
}

// Store owns every message of one or more connections and the three queues
// moving them through reassembly, sending and acknowledgment. It is not
// safe for concurrent use, callers confine it to a single goroutine.
type Store struct {
	maxFrameSize uint16
	logPrefix    string

	idGen ID
	arena map[ID]*entry

	received   map[uint32]ID   // connID -> frame in reassembly
	sending    map[uint32][]ID // connID -> frames waiting for the transport, oldest first
	pendingAck map[uint32][]ID // connID -> frames sent and not yet acknowledged, oldest first
}

func NewStore(maxFrameSize uint16, logPrefix string) *Store {
	return &Store{
		maxFrameSize: maxFrameSize,
		logPrefix:    logPrefix,

		idGen: 0,
		arena: make(map[ID]*entry),

		received:   make(map[uint32]ID),
		sending:    make(map[uint32][]ID),
		pendingAck: make(map[uint32][]ID),
	}
}

// Create places a new message into the arena and into queue q of connID.
func (s *Store) Create(connID uint32, msg *m.Message, q Queue) (ID, error) {
	s.idGen++
	id := s.idGen
	s.arena[id] = &entry{
		msg:  msg,
		refs: 0,
	}

	err := s.Add(connID, id, q)
	if err != nil {
		delete(s.arena, id)
		return 0, err
	}
	return id, nil
}

// Add references an existing arena message from queue q of connID.
func (s *Store) Add(connID uint32, id ID, q Queue) error {
	e, found := s.arena[id]
	if !found {
		return fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}

	switch q {
	case QueueReceived:
		if _, busy := s.received[connID]; busy {
			return fmt.Errorf("%w: connID=%d", ErrOccupied, connID)
		}
		s.received[connID] = id
	case QueueSending:
		s.sending[connID] = append(s.sending[connID], id)
	case QueuePendingAck:
		s.pendingAck[connID] = append(s.pendingAck[connID], id)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidQueue, q)
	}

	e.refs++
	return nil
}

// Delete drops the oldest message of queue q for connID. The message is
// freed only once no queue references it anymore.
func (s *Store) Delete(connID uint32, q Queue) (ID, error) {
	var id ID

	switch q {
	case QueueReceived:
		cached, found := s.received[connID]
		if !found {
			return 0, fmt.Errorf("%w: connID=%d, queue=%s", ErrNotFound, connID, q)
		}
		delete(s.received, connID)
		id = cached
	case QueueSending:
		var ok bool
		id, ok = popFront(s.sending, connID)
		if !ok {
			return 0, fmt.Errorf("%w: connID=%d, queue=%s", ErrNotFound, connID, q)
		}
	case QueuePendingAck:
		var ok bool
		id, ok = popFront(s.pendingAck, connID)
		if !ok {
			return 0, fmt.Errorf("%w: connID=%d, queue=%s", ErrNotFound, connID, q)
		}
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidQueue, q)
	}

	s.release(id)
	return id, nil
}

// Move transfers the oldest message of queue from to the back of queue to.
// The add happens before the delete so the reference count never drops to
// zero in between.
func (s *Store) Move(connID uint32, from Queue, to Queue) (ID, error) {
	id, found := s.Front(connID, from)
	if !found {
		return 0, fmt.Errorf("%w: connID=%d, queue=%s", ErrNotFound, connID, from)
	}

	err := s.Add(connID, id, to)
	if err != nil {
		return 0, err
	}

	_, err = s.Delete(connID, from)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MoveAll transfers every message of queue from to queue to, keeping order.
func (s *Store) MoveAll(connID uint32, from Queue, to Queue) int {
	count := 0
	for {
		_, err := s.Move(connID, from, to)
		if err != nil {
			return count
		}
		count++
	}
}

// Front returns the oldest message id of queue q for connID.
func (s *Store) Front(connID uint32, q Queue) (ID, bool) {
	switch q {
	case QueueReceived:
		id, found := s.received[connID]
		return id, found
	case QueueSending:
		ids := s.sending[connID]
		if len(ids) == 0 {
			return 0, false
		}
		return ids[0], true
	case QueuePendingAck:
		ids := s.pendingAck[connID]
		if len(ids) == 0 {
			return 0, false
		}
		return ids[0], true
	default:
		return 0, false
	}
}

// Message resolves an arena id, nil once the message was freed.
func (s *Store) Message(id ID) *m.Message {
	e, found := s.arena[id]
	if !found {
		return nil
	}
	return e.msg
}

// Refs returns how many queue slots currently reference id.
func (s *Store) Refs(id ID) int {
	e, found := s.arena[id]
	if !found {
		return 0
	}
	return int(e.refs)
}

// Locate lists the queues currently holding id.
func (s *Store) Locate(id ID) []Queue {
	var queues []Queue
	for _, cached := range s.received {
		if cached == id {
			queues = append(queues, QueueReceived)
		}
	}
	for _, ids := range s.sending {
		for _, cached := range ids {
			if cached == id {
				queues = append(queues, QueueSending)
			}
		}
	}
	for _, ids := range s.pendingAck {
		for _, cached := range ids {
			if cached == id {
				queues = append(queues, QueuePendingAck)
			}
		}
	}
	return queues
}

// Count returns the number of messages of connID in queue q.
func (s *Store) Count(connID uint32, q Queue) int {
	switch q {
	case QueueReceived:
		if _, found := s.received[connID]; found {
			return 1
		}
		return 0
	case QueueSending:
		return len(s.sending[connID])
	case QueuePendingAck:
		return len(s.pendingAck[connID])
	default:
		return 0
	}
}

// Len returns the number of live messages in the arena.
func (s *Store) Len() int {
	return len(s.arena)
}

// Purge removes connID from every queue and frees what is left unreferenced.
func (s *Store) Purge(connID uint32) int {
	count := 0
	for _, q := range []Queue{QueueReceived, QueueSending, QueuePendingAck} {
		for {
			_, err := s.Delete(connID, q)
			if err != nil {
				break
			}
			count++
		}
	}
	return count
}

func (s *Store) release(id ID) {
	e, found := s.arena[id]
	if !found {
		return
	}

	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 {
		delete(s.arena, id)
	}
}

func popFront(queue map[uint32][]ID, connID uint32) (ID, bool) {
	ids := queue[connID]
	if len(ids) == 0 {
		return 0, false
	}

	id := ids[0]
	if len(ids) == 1 {
		delete(queue, connID)
	} else {
		queue[connID] = ids[1:]
	}
	return id, true
}
