package protocol

// Envelope type discriminators. Server-built events use kebab-case, the
// conceptual feature envelopes keep the snake_case names clients send.
const (
	EventRoomState          = "room-state"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventNewHost            = "new-host"
	EventSystemNotification = "system_notification"
	EventInsightsRequest    = "request_ai_insights"
	EventInsightsResponse   = "conceptual_ai_insights_response"
	EventToolInteraction    = "tool_interaction"
)

// TargetAll addresses a relay envelope to every other member of the room.
const TargetAll = "all"

// EnvelopeWriter delivers one wire envelope to a single connection.
type EnvelopeWriter interface {
	WriteJSON(v any) error
	Close() error
}

type ParticipantInfo struct {
	Username string `json:"username"`
}

// RoomState is the admission snapshot sent to a joiner before it is
// inserted into the roster, so it never lists the joiner itself.
type RoomState struct {
	Type         string                     `json:"type"`
	Participants map[string]ParticipantInfo `json:"participants"`
	HostID       string                     `json:"hostId"`
}

type UserJoined struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserLeft struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type NewHost struct {
	Type         string `json:"type"`
	HostID       string `json:"hostId"`
	HostUsername string `json:"hostUsername"`
}

type SystemNotification struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type InsightsData struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"actionItems"`
	Sentiment   string   `json:"sentiment"`
}

type InsightsResponse struct {
	Type   string       `json:"type"`
	UserID string       `json:"userId"`
	Data   InsightsData `json:"data"`
}

// Relay is an envelope the server forwards without interpreting. Only the
// discriminator and routing fields are ever inspected; the rest of the bag
// is opaque.
type Relay map[string]any

func (r Relay) Type() string {
	t, _ := r["type"].(string)
	return t
}

func (r Relay) Target() string {
	target, _ := r["target"].(string)
	return target
}

// Field reads an arbitrary string field, with a fallback for envelopes
// that omit it.
func (r Relay) Field(field, fallback string) string {
	if v, ok := r[field].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Stamped returns a copy with the routing field stripped and the verified
// origin attached, so recipients never have to trust client-supplied
// identity fields.
func (r Relay) Stamped(userID, username string) Relay {
	out := make(Relay, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	delete(out, "target")
	out["userId"] = userID
	out["fromUsername"] = username
	return out
}
