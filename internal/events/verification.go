// Package events implements authenticity verification for inbound workflow
// events.
package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// VerificationHeader is the header webhook callers must include with every
// event payload.
const VerificationHeader = "x-workflow-event-verification-hash"

// GenerateVerificationHash computes the expected verification hash for a
// workflow: hex(HMAC-SHA256(secret, workflowID)).
func GenerateVerificationHash(secret, workflowID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(workflowID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyVerificationHash reports whether the presented hash matches the
// expected one for the workflow. The comparison is constant time.
func VerifyVerificationHash(secret, workflowID, presented string) bool {
	expected := GenerateVerificationHash(secret, workflowID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
