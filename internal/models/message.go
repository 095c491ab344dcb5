package models

// Visibility controls who may read a message.
type Visibility string

const (
	// VisibilityPublic messages are returned to every reader.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate messages are returned only to the session that
	// wrote them (private assistant replies).
	VisibilityPrivate Visibility = "private"
)

// Message represents a chat message stored in Redis. Messages are
// immutable once created.
type Message struct {
	ID         string     `json:"id"` // ULID
	Author     string     `json:"author"`
	Body       string     `json:"body"`
	CreatedAt  int64      `json:"ts"` // Unix seconds, doubles as the sort key
	Visibility Visibility `json:"vis,omitempty"`

	// OriginHash is the daily-salted hash of the writer's address. It is
	// used only for flood correlation and is stripped before a message
	// leaves the store boundary.
	OriginHash string `json:"origin,omitempty"`

	// OwnerSession is the session that wrote a private message. Stripped
	// on the way out, like OriginHash.
	OwnerSession string `json:"owner,omitempty"`
}

// Public returns a copy safe to hand to readers: internal correlation
// fields are cleared and the default visibility is made explicit.
func (m Message) Public() Message {
	m.OriginHash = ""
	m.OwnerSession = ""
	if m.Visibility == "" {
		m.Visibility = VisibilityPublic
	}
	return m
}

// VisibleTo reports whether the given session may read the message.
func (m Message) VisibleTo(sessionID string) bool {
	if m.Visibility != VisibilityPrivate {
		return true
	}
	return m.OwnerSession != "" && m.OwnerSession == sessionID
}
