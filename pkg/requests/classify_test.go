package requests

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want Capability
	}{
		{"room service type", Request{RequestType: "Room_Service", Description: "a cheeseburger"}, RoomService},
		{"room service wins over check", Request{RequestType: "room_service", Description: "check the menu"}, RoomService},
		{"concierge website", Request{RequestType: "concierge", Description: "check the website for Restaurant X"}, Concierge},
		{"maintenance towels", Request{RequestType: "maintenance", Description: "need extra towels"}, Maintenance},
		{"check rescues maintenance", Request{RequestType: "maintenance", Description: "Check the AC please"}, Concierge},
		{"website rescues unknown", Request{RequestType: "info", Description: "the WEBSITE of the museum"}, Concierge},
		{"fallback", Request{RequestType: "spa", Description: "book a massage"}, Concierge},
		{"empty", Request{}, Concierge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.req)
			require.Equal(t, tc.want, got)
			require.Equal(t, got, Classify(tc.req))
		})
	}
}

func TestCapabilityNames(t *testing.T) {
	require.Equal(t, "Room Service", RoomService.String())
	require.Equal(t, "maintenance", Maintenance.Slug())
	require.Equal(t, "🛎️", Concierge.Emoji())
	require.Len(t, Capabilities, 3)
}
