package coordinator

import (
	"regexp"
	"strings"

	"github.com/go-go-golems/concierge/pkg/handlers"
	"github.com/go-go-golems/concierge/pkg/requests"
)

// TypeGeneral marks a clause that no rule could type. The classifier routes it to the
// concierge.
const TypeGeneral = "general"

// Decomposer splits an incoming message into requests, in the order they appear.
type Decomposer interface {
	Decompose(message string, guest handlers.Guest) []requests.Request
}

var (
	sentenceRe = regexp.MustCompile(`[.!?;\n]+`)
	joinRe     = regexp.MustCompile(`(?i),?\s+(?:and also|and then|also|as well as|plus)\s+`)
	andRe      = regexp.MustCompile(`(?i),?\s+and\s+`)
	urgentRe   = regexp.MustCompile(`(?i)\b(urgent|asap|immediately|emergency|right now)\b`)
	laterRe    = regexp.MustCompile(`(?i)\b(whenever|no rush|later|tomorrow)\b`)
)

var (
	roomServiceCues = []string{"room service", "order", "hungry", "menu", "bring me", "deliver"}
	conciergeCues   = []string{
		"recommend", "suggest", "restaurant", "reservation", "reserve", "book",
		"website", "where", "nearby", "near by", "museum", "theater", "theatre",
		"taxi", "tour", "visit", "open", "tickets", "directions",
	}
)

// RuleDecomposer types clauses with keyword cues and the handler catalog.
type RuleDecomposer struct {
	Catalog *handlers.Catalog
}

func NewRuleDecomposer(c *handlers.Catalog) *RuleDecomposer {
	if c == nil {
		c = handlers.DefaultCatalog()
	}
	return &RuleDecomposer{Catalog: c}
}

func (d *RuleDecomposer) Decompose(message string, guest handlers.Guest) []requests.Request {
	var out []requests.Request
	for _, clause := range d.clauses(message) {
		out = append(out, requests.Request{
			RequestType: d.typeOf(clause),
			Description: clause,
			RoomContext: guest.RoomNumber,
			Priority:    priorityOf(clause),
		})
	}
	return out
}

// clauses splits on sentence boundaries and explicit joiners. A plain "and" only
// splits when both sides can be typed, so "towels and soap" stays one request.
func (d *RuleDecomposer) clauses(message string) []string {
	var out []string
	for _, sentence := range sentenceRe.Split(message, -1) {
		for _, part := range joinRe.Split(sentence, -1) {
			out = append(out, d.splitAnd(part)...)
		}
	}
	return compact(out)
}

func (d *RuleDecomposer) splitAnd(part string) []string {
	pieces := andRe.Split(part, -1)
	if len(pieces) < 2 {
		return []string{part}
	}
	var (
		out []string
		cur = pieces[0]
	)
	for _, p := range pieces[1:] {
		if d.typeOf(cur) != TypeGeneral && d.typeOf(p) != TypeGeneral && d.typeOf(cur) != d.typeOf(p) {
			out = append(out, cur)
			cur = p
			continue
		}
		cur = cur + " and " + p
	}
	return append(out, cur)
}

func (d *RuleDecomposer) typeOf(clause string) string {
	lc := strings.ToLower(clause)
	switch {
	case containsAny(lc, []string{"room service"}):
		return requests.RoomService.Slug()
	case containsAny(lc, conciergeCues):
		return requests.Concierge.Slug()
	}
	if _, ok := d.Catalog.CheckService(clause); ok {
		return requests.Maintenance.Slug()
	}
	if containsAny(lc, roomServiceCues) || len(d.Catalog.SearchMenu(clause)) > 0 {
		return requests.RoomService.Slug()
	}
	if len(d.Catalog.SearchVenues(clause)) > 0 {
		return requests.Concierge.Slug()
	}
	return TypeGeneral
}

func priorityOf(clause string) requests.Priority {
	switch {
	case urgentRe.MatchString(clause):
		return requests.PriorityHigh
	case laterRe.MatchString(clause):
		return requests.PriorityLow
	default:
		return requests.PriorityMedium
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var fillerRe = regexp.MustCompile(`(?i)^(?:please|hi|hello|hey|thanks|thank you|ok|okay|and)\b[\s,]*`)

func compact(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, ",")
		p = strings.TrimSpace(fillerRe.ReplaceAllString(p, ""))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
