// Package push is the real-time channel that delivers server events to one
// authenticated session.
package push

import "context"

// Events exchanged over the channel.
const (
	EventRegisterUser = "register_user"
	EventNotification = "notification"
)

// Channel opens connections to a push endpoint.
type Channel interface {
	Connect(ctx context.Context, endpoint string) (Handle, error)
}

// Handle is one open connection. Handlers registered with On are called
// from the channel's own goroutines; reconnection is handled internally and
// keeps every registered handler.
type Handle interface {
	Emit(event string, payload any) error
	On(event string, fn func(payload []byte))
	Disconnect()
}

// Event is the payload of an EventNotification delivery.
type Event struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
