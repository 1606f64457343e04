package mqtt

import (
	"fmt"
	"strings"
)

// TopicRoot is the first level of every PTL topic.
//
// The hierarchy is ptl/{site}/{category}[/{id}]:
//
//	ptl/wh1/event/2          key, print and ack telegrams from controller 2
//	ptl/wh1/alarm/2          alarm telegrams from controller 2
//	ptl/wh1/health           retained health status (also the last will)
//	ptl/wh1/command/movement movement requests from other services
//	ptl/wh1/command/reload   topology reload requests
const TopicRoot = "ptl"

// Command names accepted under ptl/{site}/command/.
const (
	CommandMovement = "movement"
	CommandReload   = "reload"
)

// Topics builds topics for one site.
//
//	topics := mqtt.Topics{Site: "wh1"}
//	topics.Event(2) // "ptl/wh1/event/2"
type Topics struct {
	Site string
}

func (t Topics) site() string {
	if t.Site == "" {
		return "default"
	}
	return t.Site
}

// Event returns the topic for telegrams received from a controller.
func (t Topics) Event(endpointID int64) string {
	return fmt.Sprintf("%s/%s/event/%d", TopicRoot, t.site(), endpointID)
}

// Alarm returns the topic for alarm telegrams received from a controller.
func (t Topics) Alarm(endpointID int64) string {
	return fmt.Sprintf("%s/%s/alarm/%d", TopicRoot, t.site(), endpointID)
}

// Health returns the retained health topic.
func (t Topics) Health() string {
	return fmt.Sprintf("%s/%s/health", TopicRoot, t.site())
}

// Command returns the topic for one command.
func (t Topics) Command(name string) string {
	return fmt.Sprintf("%s/%s/command/%s", TopicRoot, t.site(), name)
}

// AllEvents matches the events of every controller of the site.
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/%s/event/+", TopicRoot, t.site())
}

// AllCommands matches every command of the site.
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/%s/command/+", TopicRoot, t.site())
}

// CommandName extracts the command from a topic produced by Command.
//
// Returns:
//   - string: The last topic level
//   - bool: false if topic is not a command topic of this site
func (t Topics) CommandName(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/command/", TopicRoot, t.site())
	name, ok := strings.CutPrefix(topic, prefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
