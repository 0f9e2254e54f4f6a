// Package gateway speaks to the chat platform gateway over NATS. Inbound
// platform events are decoded into typed values; outbound calls go out as
// request-reply so the caller learns whether they worked.
package gateway

// Inbound events.
const (
	SubjectEventPrefix     = "moniker.gateway.event."
	SubjectMemberJoined    = SubjectEventPrefix + "member_joined"
	SubjectBegin           = SubjectEventPrefix + "begin"
	SubjectAcknowledged    = SubjectEventPrefix + "acknowledged"
	SubjectAnswer          = SubjectEventPrefix + "answer"
	SubjectFreeText        = SubjectEventPrefix + "free_text"
	SubjectIdentityChanged = SubjectEventPrefix + "identity_changed"
)

// Requests.
const (
	SubjectSend        = "moniker.gateway.send"
	SubjectApply       = "moniker.gateway.apply"
	SubjectDirectory   = "moniker.gateway.directory"
	SubjectAuditRecent = "moniker.gateway.audit.recent"
)

// One-way.
const SubjectWarn = "moniker.gateway.warn"

// Announcements for other services.
const (
	SubjectIdentityAssigned = "moniker.identity.assigned"
	SubjectIdentityReverted = "moniker.identity.reverted"
)
