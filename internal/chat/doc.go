// Package chat is the real-time core: it tracks live sessions per user,
// drives each session through its lifecycle, and turns a submitted message
// into a persisted row plus a fan-out to every connected room member.
//
// The package is transport-agnostic. A gateway supplies an Outbound for each
// connection and forwards decoded inbound events to the Manager.
//
// Delivery is at-most-once and process-local. Members with no live session
// on this instance are skipped and nothing is queued for them.
package chat
