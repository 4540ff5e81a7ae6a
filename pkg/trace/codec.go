package trace

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encode serializes an event as protojson of a google.protobuf.Struct so consumers in
// any language can read the bus without our Go types.
func Encode(ev Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "trace: marshal event")
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, errors.Wrap(err, "trace: normalize event")
	}
	st, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, errors.Wrap(err, "trace: build struct")
	}
	return protojson.Marshal(st)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Event, error) {
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(b, st); err != nil {
		return Event{}, errors.Wrap(err, "trace: unmarshal struct")
	}
	m := st.AsMap()
	ev := Event{
		ID:     asString(m["id"]),
		Type:   EventType(asString(m["type"])),
		ConvID: asString(m["conv_id"]),
		TurnID: asString(m["turn_id"]),
	}
	if ts := asString(m["time"]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err == nil {
			ev.Time = t
		}
	}
	if f, ok := m["fields"].(map[string]any); ok {
		ev.Fields = f
	}
	return ev, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
