package fc

// Lookup-table decoding of raw MAVLink enum values into human-readable
// names. Pure functions, no I/O; decoding is additive and never discards
// the original numeric fields.

// mavTypeNames maps MAV_TYPE values to vehicle/component type names.
// Reference: https://mavlink.io/en/messages/common.html#MAV_TYPE
var mavTypeNames = map[int64]string{
	0:  "GENERIC",
	1:  "FIXED_WING",
	2:  "QUADROTOR",
	3:  "COAXIAL",
	4:  "HELICOPTER",
	5:  "ANTENNA_TRACKER",
	6:  "GCS",
	7:  "AIRSHIP",
	8:  "FREE_BALLOON",
	9:  "ROCKET",
	10: "GROUND_ROVER",
	11: "SURFACE_BOAT",
	12: "SUBMARINE",
	13: "HEXAROTOR",
	14: "OCTOROTOR",
	15: "TRICOPTER",
	16: "FLAPPING_WING",
	17: "KITE",
	18: "ONBOARD_CONTROLLER",
	19: "VTOL_DUOROTOR",
	20: "VTOL_QUADROTOR",
	21: "VTOL_TILTROTOR",
	22: "VTOL_FIXEDROTOR",
	23: "VTOL_TAILSITTER",
	24: "VTOL_RESERVED4",
	25: "VTOL_RESERVED5",
	26: "GIMBAL",
	27: "ADSB",
	28: "PARAFOIL",
	29: "DODECAROTOR",
	30: "CAMERA",
	31: "CHARGING_STATION",
	32: "FLARM",
	33: "SERVO",
	34: "ODID",
	35: "DECAROTOR",
	36: "BATTERY",
	37: "PARACHUTE",
	38: "LOG",
	39: "OSD",
	40: "IMU",
	41: "GPS",
	42: "WINCH",
	43: "GENERATOR",
	44: "MOTOR_TEST",
	45: "HELI_TAIL",
	46: "HELI_CONTROL",
}

// mavAutopilotNames maps MAV_AUTOPILOT values to autopilot names.
// Reference: https://mavlink.io/en/messages/common.html#MAV_AUTOPILOT
var mavAutopilotNames = map[int64]string{
	0:  "GENERIC",
	1:  "RESERVED",
	2:  "SLUGS",
	3:  "ARDUPILOTMEGA",
	4:  "OPENPILOT",
	5:  "GENERIC_WAYPOINTS_ONLY",
	6:  "GENERIC_WAYPOINTS_AND_SIMPLE_NAVIGATION_ONLY",
	7:  "GENERIC_MISSION_FULL",
	8:  "INVALID",
	9:  "PPZ",
	10: "UDB",
	11: "FP",
	12: "PX4",
	13: "SMACCMPILOT",
	14: "AUTOQUAD",
	15: "ARMAZILA",
	16: "AEROB",
	17: "ASLUAV",
	18: "SMARTAP",
	19: "AIRRAILS",
	20: "REFLEX",
	21: "Naza",
	22: "TAU",
	23: "ICAROUS",
	24: "DAISA",
	25: "APM_PLANNER",
	26: "AUTERION",
	27: "PAPARAZZI",
	28: "ENDR",
	29: "GIMBAL",
	30: "MISSION_PLANNER",
	31: "QGROUNDCONTROL",
	32: "NAVIO2",
	33: "OPENDRONEID",
	34: "TAISYNC",
	35: "WFB",
	36: "NOOPAUTOLAND",
	37: "MAGIC",
	38: "APM_COPTER",
	39: "APM_ROVER",
	40: "APM_PLANE",
}

// mavStateNames maps MAV_STATE values to system state names.
// Reference: https://mavlink.io/en/messages/common.html#MAV_STATE
var mavStateNames = map[int64]string{
	0: "UNINIT",
	1: "BOOT",
	2: "CALIBRATING",
	3: "STANDBY",
	4: "ACTIVE",
	5: "CRITICAL",
	6: "EMERGENCY",
	7: "POWEROFF",
	8: "FLIGHT_TERMINATION",
}

// modeFlag is one bit of the HEARTBEAT base_mode bitmask.
type modeFlag struct {
	bit  int64
	name string
}

// baseModeFlags lists the MAV_MODE_FLAG bits, most significant first.
// Reference: https://mavlink.io/en/messages/common.html#MAV_MODE_FLAG
var baseModeFlags = []modeFlag{
	{128, "MAV_MODE_FLAG_SAFETY_ARMED"},
	{64, "MAV_MODE_FLAG_MANUAL_INPUT_ENABLED"},
	{32, "MAV_MODE_FLAG_HIL_ENABLED"},
	{16, "MAV_MODE_FLAG_STABILIZE_ENABLED"},
	{8, "MAV_MODE_FLAG_GUIDED_ENABLED"},
	{4, "MAV_MODE_FLAG_AUTO_ENABLED"},
	{2, "MAV_MODE_FLAG_TEST_ENABLED"},
	{1, "MAV_MODE_FLAG_CUSTOM_MODE_ENABLED"},
}

// arduCopterModeNames maps ArduCopter custom_mode values to flight mode
// names. Reference: ArduPilot documentation.
var arduCopterModeNames = map[int64]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	10: "OF_LOITER",
	11: "DRIFT",
	13: "SPORT",
	14: "FLIP",
	15: "AUTOTUNE",
	16: "POSHOLD",
	17: "BRAKE",
	18: "THROW",
	19: "AVOID_ADSB",
	20: "GUIDED_NOGPS",
	21: "SMART_RTL",
	22: "FLOWHOLD",
	23: "FOLLOW",
	24: "ZIGZAG",
	25: "SYSTEMID",
	26: "HELI_RATE",
	27: "HELI_ATT",
	28: "HELI_RATT",
	29: "HELI_ACRO",
	30: "HELI_STABILIZE",
	31: "HELI_HOVER",
	32: "HELI_LOITER",
	33: "HELI_RTL",
	34: "HELI_CIRCLE",
	35: "HELI_LAND",
	36: "HELI_FLIP",
	37: "HELI_ACRO_YAW",
	38: "HELI_AUTOTUNE",
	39: "HELI_LOITER_ALT",
	40: "HELI_POSHOLD",
	41: "HELI_BRAKE",
	42: "HELI_THROW",
	43: "HELI_AVOID_ADSB",
	44: "HELI_GUIDED_NOGPS",
	45: "HELI_SMART_RTL",
	46: "HELI_FLOWHOLD",
	47: "HELI_FOLLOW",
	48: "HELI_ZIGZAG",
	49: "HELI_SYSTEMID",
}

const unknownName = "UNKNOWN"

// DecodeBaseModeFlags expands the base_mode bitmask into the names of the
// set flags, most significant bit first.
func DecodeBaseModeFlags(baseMode int64) []string {
	flags := []string{}
	for _, f := range baseModeFlags {
		if baseMode&f.bit != 0 {
			flags = append(flags, f.name)
		}
	}
	return flags
}

// DecodeFlightMode resolves an ArduCopter custom_mode value to a flight
// mode name, or UNKNOWN.
func DecodeFlightMode(customMode int64) string {
	if name, ok := arduCopterModeNames[customMode]; ok {
		return name
	}
	return unknownName
}

// Decode dispatches on the message type and returns the message with
// human-readable fields added. Types without a decoder pass through
// unchanged; new decoders plug in here without touching existing ones.
func Decode(msg DecodedMessage) DecodedMessage {
	switch msg.Type {
	case "HEARTBEAT":
		return decodeHeartbeat(msg)
	}
	return msg
}

// decodeHeartbeat adds type_name, autopilot_name, system_status_name,
// base_mode_flags and flight_mode_name alongside the untouched numeric
// fields. If the vehicle-type value was overwritten by a textual message
// name upstream, type_name degrades to the string rather than failing.
func decodeHeartbeat(msg DecodedMessage) DecodedMessage {
	out := msg
	out.Decoded = make(map[string]any, len(msg.Decoded)+5)
	for k, v := range msg.Decoded {
		out.Decoded[k] = v
	}

	if v, ok := numericField(msg.Fields, "type"); ok {
		out.Decoded["type_name"] = lookupName(mavTypeNames, v)
	} else if s, ok := msg.Fields["type"].(string); ok {
		out.Decoded["type_name"] = s
	} else {
		out.Decoded["type_name"] = unknownName
	}

	if v, ok := numericField(msg.Fields, "autopilot"); ok {
		out.Decoded["autopilot_name"] = lookupName(mavAutopilotNames, v)
	}
	if v, ok := numericField(msg.Fields, "system_status"); ok {
		out.Decoded["system_status_name"] = lookupName(mavStateNames, v)
	}
	if v, ok := numericField(msg.Fields, "base_mode"); ok {
		out.Decoded["base_mode_flags"] = DecodeBaseModeFlags(v)
	}
	if v, ok := numericField(msg.Fields, "custom_mode"); ok {
		out.Decoded["flight_mode_name"] = DecodeFlightMode(v)
	}
	return out
}

func lookupName(table map[int64]string, value int64) string {
	if name, ok := table[value]; ok {
		return name
	}
	return unknownName
}

// numericField coerces a field value to int64 across the numeric kinds
// fieldsOf and JSON decoding produce.
func numericField(fields map[string]any, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case int:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
