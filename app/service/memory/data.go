package memory

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool"
)

// Turn is one stored exchange unit. Tag carries dispatcher markers
// (e.g. a delete-confirmation prompt) that the policy engine reads back
// on the following message.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Tag       string    `json:"tag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// windowKey identifies one user's window for one calendar day. Keys roll
// over at midnight, so a window never spans two days.
func windowKey(userID string, day time.Time) string {
	return fmt.Sprintf("conversation:%s:%s", userID, day.Format("2006-01-02"))
}
