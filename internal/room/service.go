package room

import (
	"log/slog"
	"strings"
	"sync"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/intellimeet/signal-server/pkg/protocol"
	"github.com/intellimeet/signal-server/pkg/variables"
)

// Service is the room directory plus the connection lifecycle manager.
// It is the only writer of the directory; every mutation is serialized
// behind one mutex. Broadcast and unicast sends happen outside the
// critical section, over roster snapshots, so one slow peer never stalls
// membership mutation. The only in-lock write is the admission snapshot,
// which is deadline-bounded.
type Service struct {
	mu    sync.Mutex
	rooms map[string]*Room

	logger   *slog.Logger
	notifier *Notifier

	// evictAfterFailures > 0 schedules a participant's disconnect after
	// that many consecutive failed sends. 0 disables eviction; failures
	// are only logged.
	evictAfterFailures int64
}

// RoomInfo is the read-only directory view served by the room-list API.
type RoomInfo struct {
	RoomID           string `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
	HostID           string `json:"hostId"`
}

type NewServiceParams struct {
	fx.In

	Logger   *slog.Logger
	Notifier *Notifier
}

func NewService(params NewServiceParams) *Service {
	evictAfter, err := variables.ParseInt(variables.Env(
		variables.SIGNAL_EVICT_AFTER_FAILURES,
		variables.SIGNAL_EVICT_AFTER_FAILURES_DEFAULT,
	))
	if err != nil || evictAfter < 0 {
		evictAfter = 0
	}

	return &Service{
		rooms:              make(map[string]*Room),
		logger:             params.Logger,
		notifier:           params.Notifier,
		evictAfterFailures: int64(evictAfter),
	}
}

// Connect admits a participant. The room is created lazily with the
// joiner as host. The room-state snapshot is evaluated before insertion
// so it reflects everyone already there, never the joiner itself, and the
// user-joined broadcast goes to the pre-insert roster only.
func (s *Service) Connect(roomID, userID, username string, w protocol.EnvelopeWriter) error {
	if strings.TrimSpace(username) == "" {
		return ErrEmptyUsername
	}

	s.mu.Lock()
	r, exist := s.rooms[roomID]
	if !exist {
		r = newRoom(roomID, userID)
		s.rooms[roomID] = r
		s.logger.Info("room created",
			slog.String("room", roomID),
			slog.String("host", userID))
	}
	if _, dup := r.participants[userID]; dup {
		s.mu.Unlock()
		return ErrDuplicateUserID
	}

	// The snapshot is written before insertion, while the directory is
	// still locked, so it is guaranteed to be the joiner's first envelope
	// and can never contain the joiner itself. The write carries a
	// deadline, which bounds the critical section.
	snapshot := protocol.RoomState{
		Type:         protocol.EventRoomState,
		Participants: r.rosterInfo(),
		HostID:       r.hostID,
	}
	if err := w.WriteJSON(snapshot); err != nil {
		s.logger.Error("room-state snapshot delivery failed",
			slog.String("room", roomID),
			slog.String("user", userID),
			slog.String("err", err.Error()))
	}
	others := r.recipients(userID)

	p := &Participant{ID: userID, Username: username, writer: w}
	r.insert(p)
	total := len(r.participants)
	s.mu.Unlock()

	s.logger.Info("participant connected",
		slog.String("room", roomID),
		slog.String("user", userID),
		slog.String("username", username),
		slog.Int("total", total))

	s.fanOut(roomID, others, protocol.UserJoined{
		Type:     protocol.EventUserJoined,
		UserID:   userID,
		Username: username,
	})
	s.notifier.DispatchUpdateRooms()
	return nil
}

// Disconnect removes a participant and resolves host succession. It is
// idempotent: an unknown room, an unknown user, or a repeat call logs and
// no-ops. When userID is empty the participant is resolved by reverse
// writer lookup, covering transports that dropped before identity was
// known.
func (s *Service) Disconnect(roomID, userID string, w protocol.EnvelopeWriter) {
	s.mu.Lock()
	r, exist := s.rooms[roomID]
	if !exist {
		s.mu.Unlock()
		s.logger.Warn("disconnect for unknown room",
			slog.String("room", roomID),
			slog.String("user", userID))
		return
	}

	if userID == "" {
		if p := r.byWriter(w); p != nil {
			userID = p.ID
		}
	}
	p, present := r.participants[userID]
	if !present {
		s.mu.Unlock()
		s.logger.Warn("disconnect for unknown participant",
			slog.String("room", roomID),
			slog.String("user", userID))
		return
	}

	r.remove(userID)

	if r.empty() {
		delete(s.rooms, roomID)
		s.mu.Unlock()
		s.logger.Info("room closed", slog.String("room", roomID))
		s.notifier.DispatchUpdateRooms()
		return
	}

	var successor *Participant
	if userID == r.hostID {
		successor = r.earliestSurvivor()
		r.hostID = successor.ID
	}
	remaining := r.recipients("")
	s.mu.Unlock()

	s.logger.Info("participant disconnected",
		slog.String("room", roomID),
		slog.String("user", userID),
		slog.String("username", p.Username))

	// The succession broadcast must land before the user-left broadcast
	// for the same departure.
	if successor != nil {
		s.logger.Info("host succession",
			slog.String("room", roomID),
			slog.String("host", successor.ID))
		s.fanOut(roomID, remaining, protocol.NewHost{
			Type:         protocol.EventNewHost,
			HostID:       successor.ID,
			HostUsername: successor.Username,
		})
	}

	s.fanOut(roomID, remaining, protocol.UserLeft{
		Type:     protocol.EventUserLeft,
		UserID:   userID,
		Username: p.Username,
	})
	s.notifier.DispatchUpdateRooms()
}

// Broadcast delivers one envelope to every room member except the
// excluded sender. Delivery is best effort per destination.
func (s *Service) Broadcast(roomID, excludeUserID string, envelope any) {
	s.mu.Lock()
	r, exist := s.rooms[roomID]
	if !exist {
		s.mu.Unlock()
		s.logger.Warn("broadcast for unknown room", slog.String("room", roomID))
		return
	}
	targets := r.recipients(excludeUserID)
	s.mu.Unlock()

	s.fanOut(roomID, targets, envelope)
}

// Unicast delivers one envelope to a single participant. A missing
// target is logged, never surfaced to the sender.
func (s *Service) Unicast(roomID, targetUserID string, envelope any) {
	s.mu.Lock()
	var target *Participant
	if r, exist := s.rooms[roomID]; exist {
		target = r.participants[targetUserID]
	}
	s.mu.Unlock()

	if target == nil {
		s.logger.Warn("unicast target not found",
			slog.String("room", roomID),
			slog.String("target", targetUserID))
		return
	}
	s.send(roomID, target, envelope)
}

// Lookup returns the participant currently registered under
// (roomID, userID).
func (s *Service) Lookup(roomID, userID string) (*Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exist := s.rooms[roomID]
	if !exist {
		return nil, false
	}
	p, present := r.participants[userID]
	return p, present
}

// Info returns the directory view of one room.
func (s *Service) Info(roomID string) (RoomInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exist := s.rooms[roomID]
	if !exist {
		return RoomInfo{}, false
	}
	return RoomInfo{
		RoomID:           r.id,
		ParticipantCount: len(r.participants),
		HostID:           r.hostID,
	}, true
}

// ListRooms snapshots the whole directory.
func (s *Service) ListRooms() []RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		result = append(result, RoomInfo{
			RoomID:           r.id,
			ParticipantCount: len(r.participants),
			HostID:           r.hostID,
		})
	}
	return result
}

// fanOut sends one envelope to each target in parallel. A failing
// destination is logged and counted; it never aborts delivery to the
// others.
func (s *Service) fanOut(roomID string, targets []*Participant, envelope any) {
	if len(targets) == 0 {
		return
	}

	var g errgroup.Group
	for _, target := range targets {
		target := target
		g.Go(func() error {
			return s.send(roomID, target, envelope)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Debug("fan-out finished with undelivered destinations",
			slog.String("room", roomID))
	}
}

func (s *Service) send(roomID string, p *Participant, envelope any) error {
	if err := p.writer.WriteJSON(envelope); err != nil {
		failures := p.sendFailures.Inc()
		s.logger.Error("envelope delivery failed",
			slog.String("room", roomID),
			slog.String("user", p.ID),
			slog.Int64("consecutiveFailures", failures),
			slog.String("err", err.Error()))

		if s.evictAfterFailures > 0 && failures >= s.evictAfterFailures {
			s.logger.Warn("evicting unreachable participant",
				slog.String("room", roomID),
				slog.String("user", p.ID))
			go func() {
				_ = p.writer.Close()
				s.Disconnect(roomID, p.ID, p.writer)
			}()
		}
		return err
	}
	p.sendFailures.Store(0)
	return nil
}
