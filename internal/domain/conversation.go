package domain

import (
	"strings"
	"time"
)

// Conversation is a chat thread between participants
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participantIds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DirectConversationID names the one-to-one conversation between two users.
// The id does not depend on argument order.
func DirectConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

// NamedInDirect reports whether conversationID is a direct conversation id
// naming userID as one of its two ends
func NamedInDirect(conversationID, userID string) bool {
	rest, ok := strings.CutPrefix(conversationID, "direct:")
	if !ok || userID == "" {
		return false
	}
	return strings.HasPrefix(rest, userID+":") || strings.HasSuffix(rest, ":"+userID)
}
