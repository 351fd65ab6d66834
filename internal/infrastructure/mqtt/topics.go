package mqtt

// TopicPrefix is the root of every topic oilfoxd publishes or consumes.
// The bridge builds its own state, status, health and discovery topics
// under the same prefix (see package oilfox).
const TopicPrefix = "oilfox"

// Topics provides builders for the daemon-level topics.
type Topics struct{}

// SystemStatus returns the topic carrying the client's online/offline
// status and the Last Will.
//
// Example: oilfox/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllStates matches every channel of every device.
//
// Pattern: oilfox/state/+/+
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+/+"
}

// AllStatuses matches the availability of the bridge and every device.
//
// Pattern: oilfox/status/+
func (Topics) AllStatuses() string {
	return TopicPrefix + "/status/+"
}
