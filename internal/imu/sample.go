package imu

// Vector3 is one three-axis reading in device units.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is the canonical accelerometer + gyroscope reading.
type Sample struct {
	Acceleration Vector3 `json:"acceleration"`
	Gyroscope    Vector3 `json:"gyroscope"`
	Timestamp    int64   `json:"timestamp"` // ms since epoch
}

// Tag is the (activity, sub-activity) label attached at ingestion.
// A nil field means no label.
type Tag struct {
	Activity    *string `json:"activity"`
	SubActivity *string `json:"subActivity"`
}

// NewTag builds a Tag, mapping empty names to nil.
func NewTag(activity, subActivity string) Tag {
	var t Tag
	if activity != "" {
		t.Activity = &activity
	}
	if subActivity != "" {
		t.SubActivity = &subActivity
	}
	return t
}

// ActivityName returns the activity or "" when unlabeled.
func (t Tag) ActivityName() string {
	if t.Activity == nil {
		return ""
	}
	return *t.Activity
}

// SubActivityName returns the sub-activity or "" when unset.
func (t Tag) SubActivityName() string {
	if t.SubActivity == nil {
		return ""
	}
	return *t.SubActivity
}

// TaggedSample is a Sample plus the tag that was live when it arrived.
type TaggedSample struct {
	Sample
	Tag
}

// FlatSample is the flat wire encoding published by the device.
type FlatSample struct {
	AccX float64 `json:"acc_x"`
	AccY float64 `json:"acc_y"`
	AccZ float64 `json:"acc_z"`

	GyroX float64 `json:"gyro_x"`
	GyroY float64 `json:"gyro_y"`
	GyroZ float64 `json:"gyro_z"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// Flat converts s to the flat wire encoding.
func (s Sample) Flat() FlatSample {
	return FlatSample{
		AccX:      s.Acceleration.X,
		AccY:      s.Acceleration.Y,
		AccZ:      s.Acceleration.Z,
		GyroX:     s.Gyroscope.X,
		GyroY:     s.Gyroscope.Y,
		GyroZ:     s.Gyroscope.Z,
		Timestamp: s.Timestamp,
	}
}

// Samples strips the tags from a tagged slice.
func Samples(tagged []TaggedSample) []Sample {
	out := make([]Sample, len(tagged))
	for i, ts := range tagged {
		out[i] = ts.Sample
	}
	return out
}
