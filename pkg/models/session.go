package models

import "time"

// SessionMessage is one exchange in a workflow editing session.
type SessionMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// WorkflowSession is a chat session associated with a workflow for
// interactive editing assistance. Sessions expire after a period of
// inactivity; see internal/session.
type WorkflowSession struct {
	ID           string           `json:"id"`
	WorkflowID   string           `json:"workflowId"`
	CustomerID   string           `json:"customerId"`
	Messages     []SessionMessage `json:"messages"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastActiveAt time.Time        `json:"lastActiveAt"`
}
