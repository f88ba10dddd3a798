package mqtt

import "fmt"

// Topic prefixes for the Hearth MQTT hierarchy.
const (
	// TopicPrefixCore is the base for authoritative state topics.
	TopicPrefixCore = "hearth/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearth/system"
)

// Topics provides builders for Hearth MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceState returns the canonical retained state topic for one device.
//
// Example: hearth/core/device/bedroom_light/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// Mode returns the retained topic carrying the active home mode.
//
// Example: hearth/core/mode
func (Topics) Mode() string {
	return TopicPrefixCore + "/mode"
}

// SystemStatus returns the online/offline status topic (also the LWT topic).
//
// Example: hearth/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
