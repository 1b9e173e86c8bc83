package fc

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Topic is a named category used to route decoded messages to consumers.
type Topic string

const (
	TopicStatus    Topic = "status"
	TopicTelemetry Topic = "telemetry"
	TopicSensors   Topic = "sensors"
	TopicMap       Topic = "map"
	TopicRaw       Topic = "raw"
)

// Topics lists every routable topic, in a stable order.
func Topics() []Topic {
	return []Topic{TopicStatus, TopicTelemetry, TopicSensors, TopicMap, TopicRaw}
}

// ParseTopic validates a topic name coming from an external consumer.
func ParseTopic(raw string) (Topic, error) {
	t := Topic(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Topics() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", raw)
}

// DecodedMessage is one received MAVLink frame in routable form. It is
// read-only after creation; every subscriber queue shares the same value.
type DecodedMessage struct {
	Topic     Topic          `json:"topic"`
	Type      string         `json:"type"`
	TypeID    uint32         `json:"type_id,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"`
	Fields    map[string]any `json:"fields"`
	Decoded   map[string]any `json:"decoded,omitempty"`
}

// Categorize maps a message type name to its topics. GLOBAL_POSITION_INT
// belongs to both telemetry and map. Uncategorized types return nil and
// are routed to raw subscribers only.
func Categorize(msgType string) []Topic {
	switch msgType {
	case "HEARTBEAT", "SYS_STATUS":
		return []Topic{TopicStatus}
	case "GLOBAL_POSITION_INT":
		return []Topic{TopicTelemetry, TopicMap}
	case "ATTITUDE", "VFR_HUD", "BATTERY_STATUS":
		return []Topic{TopicTelemetry}
	case "RAW_IMU", "SCALED_PRESSURE", "SCALED_IMU2", "RAW_PRESSURE":
		return []Topic{TopicSensors}
	case "GPS_RAW_INT":
		return []Topic{TopicMap}
	default:
		return nil
	}
}

// NewMessage converts a typed MAVLink message (a gomavlib dialect struct)
// into a DecodedMessage snapshot taken at ts.
func NewMessage(msg any, ts time.Time) DecodedMessage {
	name := TypeName(msg)
	dm := DecodedMessage{
		Type:      name,
		Topic:     TopicRaw,
		Timestamp: float64(ts.UnixNano()) / float64(time.Second),
		Fields:    fieldsOf(msg),
	}
	if topics := Categorize(name); len(topics) > 0 {
		dm.Topic = topics[0]
	}
	if ider, ok := msg.(interface{ GetID() uint32 }); ok {
		dm.TypeID = ider.GetID()
	}
	return dm
}

// TypeName derives the wire-style message name from a dialect struct,
// e.g. *common.MessageGlobalPositionInt -> GLOBAL_POSITION_INT.
func TypeName(msg any) string {
	full := fmt.Sprintf("%T", msg)
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		full = full[idx+1:]
	}
	full = strings.TrimPrefix(full, "Message")
	words := splitCamel(full)
	for i, w := range words {
		words[i] = strings.ToUpper(w)
	}
	return strings.Join(words, "_")
}

// fieldsOf flattens the struct fields of a dialect message into a map
// keyed by snake_case field names. Named integer and float types (the
// generated MAVLink enums) collapse to plain numeric values so decoders
// and JSON encoding see ordinary numbers.
func fieldsOf(msg any) map[string]any {
	out := make(map[string]any)
	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return out
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return out
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := strings.Join(splitCamel(field.Name), "_")
		key = strings.ToLower(key)
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[key] = fv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out[key] = fv.Uint()
		case reflect.Float32, reflect.Float64:
			out[key] = fv.Float()
		case reflect.Bool:
			out[key] = fv.Bool()
		case reflect.String:
			out[key] = fv.String()
		default:
			out[key] = fv.Interface()
		}
	}
	return out
}

// splitCamel breaks a CamelCase identifier into words; digits stay with
// the word they follow ("ScaledImu2" -> ["Scaled", "Imu2"]).
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}
