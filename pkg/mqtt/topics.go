package mqtt

import (
	"fmt"
	"strings"
)

// Topic scheme for the presence engine.
//
// Sensor state changes arrive on presence/raw/{area}/{entity} with a
// JSON payload carrying the reported state. Fused area state is
// published retained on presence/state/{area}.
const (
	TopicRawSensors = "presence/raw/+/+"
	TopicStateBase  = "presence/state"
)

// RawSensorTopic constructs a raw sensor topic for a specific area and entity
// Pattern: presence/raw/{area}/{entity}
func RawSensorTopic(area, entity string) string {
	return fmt.Sprintf("presence/raw/%s/%s", area, entity)
}

// AreaStateTopic constructs the fused state topic for an area
// Pattern: presence/state/{area}
func AreaStateTopic(area string) string {
	return fmt.Sprintf("%s/%s", TopicStateBase, area)
}

// ParseRawTopic extracts area and entity from a raw sensor topic.
// Returns an error when the topic does not match the raw scheme.
func ParseRawTopic(topic string) (area, entity string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "presence" || parts[1] != "raw" {
		return "", "", fmt.Errorf("invalid raw sensor topic: %s", topic)
	}
	return parts[2], parts[3], nil
}
