package requests

import "strings"

// Capability is the closed set of handler categories a request can be routed to.
type Capability int

const (
	RoomService Capability = iota
	Concierge
	Maintenance
)

// Capabilities lists every capability in declaration order.
var Capabilities = []Capability{RoomService, Concierge, Maintenance}

func (c Capability) String() string {
	switch c {
	case RoomService:
		return "Room Service"
	case Concierge:
		return "Concierge"
	case Maintenance:
		return "Maintenance"
	default:
		return "Unknown"
	}
}

// Slug is the lower-case request type that routes to the capability.
func (c Capability) Slug() string {
	switch c {
	case RoomService:
		return "room_service"
	case Concierge:
		return "concierge"
	case Maintenance:
		return "maintenance"
	default:
		return ""
	}
}

func (c Capability) Emoji() string {
	switch c {
	case RoomService:
		return "🍽️"
	case Maintenance:
		return "🔧"
	default:
		return "🛎️"
	}
}

// Classify picks the capability for a request. Rules are evaluated in order and the
// first match wins; the substring rescue into Concierge runs before the maintenance
// check on purpose.
func Classify(r Request) Capability {
	requestType := strings.ToLower(r.RequestType)
	description := strings.ToLower(r.Description)

	switch {
	case requestType == "room_service":
		return RoomService
	case requestType == "concierge",
		strings.Contains(description, "website"),
		strings.Contains(description, "check"):
		return Concierge
	case requestType == "maintenance":
		return Maintenance
	default:
		return Concierge
	}
}
