// Package extension defines the event hooks scripts can attach to.
package extension

import (
	"github.com/inbucket/mfck/pkg/extension/event"
)

// Host defines extension points for mfck.
type Host struct {
	Events *Events
}

// Events defines all the event types supported by the extension host.
//
// Before-events give extensions a chance to alter how mfck responds: the
// first listener to return a non-nil value determines the response and the
// remaining listeners are not called.  After-events let extensions observe
// an event that has already happened.  All events are delivered
// synchronously; the checker is single threaded.
type Events struct {
	AfterMessageParsed   EventBroker[event.MessageInfo, Void]
	AfterCheckFinding    EventBroker[event.CheckFinding, Void]
	BeforeMailboxWritten EventBroker[event.MailboxInfo, event.WriteDecision]
}

// Void indicates the event emitter will ignore any value returned by
// listeners.
type Void struct{}

// NewHost creates a new extension host.
func NewHost() *Host {
	return &Host{Events: &Events{}}
}
