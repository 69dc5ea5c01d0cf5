package store

import (
	"log"

	m "github.com/Meander-Cloud/go-quickplay/message"
)

// Dispatcher receives every frame that completes reassembly. The message is
// freed right after Dispatch returns and must not be retained.
type Dispatcher func(connID uint32, msg *m.Message)

// Writer hands a complete frame to the transport.
type Writer func(connID uint32, buf []byte) error

// HandleData is the single entry point for raw bytes read from connID.
// Bytes are appended to the frame in reassembly, a new frame is started
// from the first byte when none is tracked, and any surplus after a
// completed frame starts the next one.
func (s *Store) HandleData(connID uint32, data []byte, dispatch Dispatcher) int {
	dispatched := 0

	for len(data) > 0 {
		id, found := s.received[connID]
		if !found {
			var err error
			id, err = s.Create(connID, m.NewIncoming(data[0], s.maxFrameSize), QueueReceived)
			if err != nil {
				log.Printf("%s: connID=%d, failed to start frame, dropping %d bytes, err=%s", s.logPrefix, connID, len(data), err.Error())
				return dispatched
			}
			data = data[1:]
		}

		msg := s.Message(id)
		n := msg.Append(data)
		data = data[n:]

		if !msg.Readable() {
			// wait for more bytes
			return dispatched
		}

		dispatch(connID, msg)
		dispatched++

		// dispatch may have purged the connection
		cached, stillReceived := s.received[connID]
		if stillReceived && cached == id {
			_, err := s.Delete(connID, QueueReceived)
			if err != nil {
				log.Printf("%s: connID=%d, failed to release dispatched frame, err=%s", s.logPrefix, connID, err.Error())
			}
		}
	}

	return dispatched
}

// Enqueue creates msg directly in the sending queue of connID.
func (s *Store) Enqueue(connID uint32, msg *m.Message) (ID, error) {
	return s.Create(connID, msg, QueueSending)
}

// SendMessages walks the sending queue in order. Written frames move to
// pendingAck, control frames are released instead. A failed write keeps
// the frame and everything behind it for the next cycle.
func (s *Store) SendMessages(write Writer) (sent int, failed int) {
	for connID := range s.sending {
		for {
			id, found := s.Front(connID, QueueSending)
			if !found {
				break
			}

			msg := s.Message(id)
			err := write(connID, msg.Bytes())
			if err != nil {
				failed++
				break
			}
			sent++

			if msg.Type().Control() {
				_, err = s.Delete(connID, QueueSending)
			} else {
				_, err = s.Move(connID, QueueSending, QueuePendingAck)
			}
			if err != nil {
				// writer purged the connection
				log.Printf("%s: connID=%d, %s written but no longer queued, err=%s", s.logPrefix, connID, msg, err.Error())
				break
			}
		}
	}
	return sent, failed
}

// Acknowledge clears the oldest frame awaiting acknowledgment from connID.
// It reports false, and changes nothing, when none is pending.
func (s *Store) Acknowledge(connID uint32) bool {
	_, err := s.Delete(connID, QueuePendingAck)
	return err == nil
}

// Resend schedules every unacknowledged frame of connID for retransmission.
func (s *Store) Resend(connID uint32) int {
	return s.MoveAll(connID, QueuePendingAck, QueueSending)
}

// ResendUnacked moves all of pendingAck back to sending, meant for a
// periodic sweep.
func (s *Store) ResendUnacked() int {
	count := 0
	for connID := range s.pendingAck {
		count += s.Resend(connID)
	}
	return count
}

// Pending returns the number of frames waiting to be written or acknowledged.
func (s *Store) Pending() (sending int, pendingAck int) {
	for _, ids := range s.sending {
		sending += len(ids)
	}
	for _, ids := range s.pendingAck {
		pendingAck += len(ids)
	}
	return sending, pendingAck
}
