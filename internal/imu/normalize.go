package imu

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

var flatFields = [6]string{"acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z"}

// Decode parses a text payload and normalizes it into a Sample.
// now stamps flat payloads that carry no timestamp.
func Decode(payload []byte, now func() time.Time) (Sample, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Sample{}, &DecodeError{Err: err}
	}
	if raw == nil {
		return Sample{}, &DecodeError{Err: errors.New("payload is null")}
	}
	return Normalize(raw, now)
}

// Normalize converts a decoded payload into a Sample. The flat shape
// (acc_x ... gyro_z, optional timestamp) is tried first, then the nested
// shape (acceleration, gyroscope, timestamp).
func Normalize(raw map[string]any, now func() time.Time) (Sample, error) {
	if vals, ok := flatValues(raw); ok {
		s := Sample{
			Acceleration: Vector3{X: vals[0], Y: vals[1], Z: vals[2]},
			Gyroscope:    Vector3{X: vals[3], Y: vals[4], Z: vals[5]},
		}
		ts, present, ok := timestamp(raw)
		switch {
		case !present:
			s.Timestamp = now().UnixMilli()
		case !ok:
			return Sample{}, &ValidationError{Field: "timestamp", Reason: "is not numeric"}
		default:
			s.Timestamp = ts
		}
		return s, nil
	}

	accRaw, hasAcc := raw["acceleration"].(map[string]any)
	gyroRaw, hasGyro := raw["gyroscope"].(map[string]any)
	ts, _, tsOK := timestamp(raw)
	if !hasAcc || !hasGyro || !tsOK {
		return Sample{}, &ValidationError{Reason: "unknown payload shape"}
	}

	acc, err := vector(accRaw, "acceleration")
	if err != nil {
		return Sample{}, err
	}
	gyro, err := vector(gyroRaw, "gyroscope")
	if err != nil {
		return Sample{}, err
	}
	return Sample{Acceleration: acc, Gyroscope: gyro, Timestamp: ts}, nil
}

func flatValues(raw map[string]any) ([6]float64, bool) {
	var vals [6]float64
	for i, key := range flatFields {
		v, ok := number(raw[key])
		if !ok {
			return vals, false
		}
		vals[i] = v
	}
	return vals, true
}

func vector(raw map[string]any, name string) (Vector3, error) {
	var axes [3]float64
	for i, key := range [3]string{"x", "y", "z"} {
		v, ok := number(raw[key])
		if !ok {
			return Vector3{}, &ValidationError{Field: name + "." + key, Reason: "is missing or not numeric"}
		}
		axes[i] = v
	}
	return Vector3{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

// timestamp reports the value, whether the key is present and non-null,
// and whether it is numeric.
func timestamp(raw map[string]any) (int64, bool, bool) {
	v, present := raw["timestamp"]
	if !present || v == nil {
		return 0, false, false
	}
	f, ok := number(v)
	if !ok {
		return 0, true, false
	}
	return int64(f), true, true
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
