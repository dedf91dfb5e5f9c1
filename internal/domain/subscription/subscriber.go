package subscription

import (
	"fmt"
	"strings"
)

// SubscriberRef identifies the owner of a subscription. Type is a free-form tag
// ("user", "team", "organization") and ID is the owner's key in its own system.
type SubscriberRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func NewSubscriberRef(subscriberType, subscriberID string) (SubscriberRef, error) {
	ref := SubscriberRef{Type: strings.TrimSpace(subscriberType), ID: strings.TrimSpace(subscriberID)}
	if err := ref.Validate(); err != nil {
		return SubscriberRef{}, err
	}
	return ref, nil
}

func (r SubscriberRef) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("subscriber type is required")
	}
	if r.ID == "" {
		return fmt.Errorf("subscriber id is required")
	}
	return nil
}

func (r SubscriberRef) String() string {
	return r.Type + ":" + r.ID
}

// SubscriberRef makes a bare reference usable wherever a Subscriber is expected.
func (r SubscriberRef) SubscriberRef() SubscriberRef {
	return r
}

// Subscriber is implemented by any type that can own subscriptions.
type Subscriber interface {
	SubscriberRef() SubscriberRef
}
