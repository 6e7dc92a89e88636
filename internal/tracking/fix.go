package tracking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fix is one GPS reading sent by a driver device.
type Fix struct {
	BusID     string    `json:"bus_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Bearing   float64   `json:"bearing"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON accepts RFC 3339 timestamps with or without a zone (UTC is
// assumed) and a missing timestamp, which is left zero.
func (f *Fix) UnmarshalJSON(data []byte) error {
	type alias Fix
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	ts := strings.TrimSpace(aux.Timestamp)
	if ts == "" {
		f.Timestamp = time.Time{}
		return nil
	}
	if !hasZone(ts) {
		ts += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
	}
	f.Timestamp = t
	return nil
}

// hasZone reports whether ts ends in "Z" or a "+hh:mm"/"-hh:mm" offset.
func hasZone(ts string) bool {
	if strings.HasSuffix(ts, "Z") || strings.HasSuffix(ts, "z") {
		return true
	}
	if len(ts) < 6 {
		return false
	}
	tail := ts[len(ts)-6:]
	return (tail[0] == '+' || tail[0] == '-') && tail[3] == ':'
}

// Validate checks the coordinates are on the globe.
func (f Fix) Validate() error {
	if f.Latitude < -90 || f.Latitude > 90 || f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("coordinates out of range: %f,%f", f.Latitude, f.Longitude)
	}
	return nil
}
