package room

import (
	"go.uber.org/atomic"

	"github.com/intellimeet/signal-server/pkg/protocol"
)

// Participant is one connected client identity inside a room. It owns
// exactly one live transport writer. Rows are owned by their Room; the
// router only ever holds a transient handle while forwarding.
type Participant struct {
	ID       string
	Username string

	// joinSeq is the monotonic admission order inside the room, used as
	// the host-succession tie-break. Map iteration order is never relied
	// on.
	joinSeq uint64

	writer protocol.EnvelopeWriter

	// sendFailures counts consecutive failed deliveries to this
	// participant. Reset on any successful send.
	sendFailures atomic.Int64
}

// Room holds the roster and current host for one room key. All methods
// must be called with the owning Service's mutex held.
type Room struct {
	id           string
	hostID       string
	participants map[string]*Participant
	nextJoinSeq  uint64
}

func newRoom(id, hostID string) *Room {
	return &Room{
		id:           id,
		hostID:       hostID,
		participants: make(map[string]*Participant),
	}
}

func (r *Room) insert(p *Participant) {
	p.joinSeq = r.nextJoinSeq
	r.nextJoinSeq++
	r.participants[p.ID] = p
}

func (r *Room) remove(userID string) {
	delete(r.participants, userID)
}

func (r *Room) empty() bool {
	return len(r.participants) == 0
}

// earliestSurvivor returns the remaining participant with the lowest
// admission order, the deterministic host successor.
func (r *Room) earliestSurvivor() *Participant {
	var survivor *Participant
	for _, p := range r.participants {
		if survivor == nil || p.joinSeq < survivor.joinSeq {
			survivor = p
		}
	}
	return survivor
}

// rosterInfo builds the id -> username view used by the room-state
// snapshot.
func (r *Room) rosterInfo() map[string]protocol.ParticipantInfo {
	info := make(map[string]protocol.ParticipantInfo, len(r.participants))
	for id, p := range r.participants {
		info[id] = protocol.ParticipantInfo{Username: p.Username}
	}
	return info
}

// recipients snapshots the roster, excluding one id, so sends can happen
// outside the directory critical section.
func (r *Room) recipients(excludeUserID string) []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for id, p := range r.participants {
		if id == excludeUserID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// byWriter resolves a participant from its transport handle, for
// disconnects that arrive before identity was resolved.
func (r *Room) byWriter(w protocol.EnvelopeWriter) *Participant {
	for _, p := range r.participants {
		if p.writer == w {
			return p
		}
	}
	return nil
}
