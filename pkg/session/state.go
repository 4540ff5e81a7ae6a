package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/concierge/pkg/requests"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// Role of a message in the conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history.
type Message struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content, Time: time.Now().UTC()}
}

// WelcomeMessage is shown when a conversation starts.
const WelcomeMessage = `# 🏨 Hotel Service Coordinator

I'm your virtual concierge, ready to assist you 24/7 with:

- **🛎️ Concierge Services**
  Local recommendations, reservations, and arrangements

- **🔧 Maintenance & Housekeeping**
  Room supplies, maintenance, and cleaning services

- **🍽️ Room Service**
  Meals, beverages, and special dietary requests

💡 For the best service, please send separate messages for different requests.
For example: first ask for towels, then for dinner recommendations.

How may I assist you today?`

// State is everything one conversation owns. It is only touched by the task that
// currently holds the session (see Manager.Acquire).
type State struct {
	ID      string
	History []Message
	Dedup   *requests.DedupCache
	// Usage accumulates the counters of every processed message.
	Usage usage.Counters
	// Exchanges counts completed incoming messages.
	Exchanges int
}

func NewState(id string) *State {
	s := &State{ID: id}
	s.OnSessionStart()
	return s
}

// OnSessionStart clears the dedup cache and the history.
func (s *State) OnSessionStart() {
	s.History = nil
	s.Dedup = requests.NewDedupCache()
	s.Usage = usage.Counters{}
	s.Exchanges = 0
}

// AppendExchange stores every message of one processed incoming message.
func (s *State) AppendExchange(msgs []Message) {
	s.History = append(s.History, msgs...)
	s.Exchanges++
}

// AddUsage folds the counters of one processing round into the session totals.
func (s *State) AddUsage(c usage.Counters) {
	s.Usage = s.Usage.Add(c)
}
