package mqtt

import "fmt"

// TopicPrefix is the root of every topic identityd publishes.
const TopicPrefix = "identity"

// Topics provides builders for identityd MQTT topics.
//
//	topic := mqtt.Topics{}.SessionEvent("login")
//	// Returns: "identity/events/login"
type Topics struct{}

// SessionEvent returns the topic for one session event action.
//
// Example: identity/events/refresh
func (Topics) SessionEvent(action string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefix, action)
}

// AllSessionEvents returns a pattern matching every session event.
//
// Pattern: identity/events/+
func (Topics) AllSessionEvents() string {
	return TopicPrefix + "/events/+"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: identity/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
