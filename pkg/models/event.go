package models

import "time"

// WorkflowEvent is one ingested webhook payload. Processed and RunID are set
// once a run has been spawned from the event; together they are the causal
// link from external trigger to internal run.
type WorkflowEvent struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	CustomerID string         `json:"customerId"`
	EventData  map[string]any `json:"eventData"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Processed  bool           `json:"processed"`
	RunID      string         `json:"runId,omitempty"`
}
