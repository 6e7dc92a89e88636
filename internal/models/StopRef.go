// internal/models/stop_ref.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StopRef is one entry of a route's stop list. It is either a reference by
// stop id, or (for records written before stops had ids) a reference by stop
// name. Use StopByID / StopByName to build one.
type StopRef struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name,omitempty"`
	Fee  float64 `json:"fee"`
}

func StopByID(id, name string, fee float64) StopRef {
	return StopRef{ID: id, Name: name, Fee: fee}
}

func StopByName(name string, fee float64) StopRef {
	return StopRef{Name: strings.TrimSpace(name), Fee: fee}
}

// Legacy reports whether the ref only carries a stop name.
func (r StopRef) Legacy() bool { return r.ID == "" }

// Matches reports whether the ref points at stop. Name matching is only used
// for legacy refs.
func (r StopRef) Matches(stop Stop) bool {
	if !r.Legacy() {
		return r.ID == stop.ID
	}
	return r.Name != "" && strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(stop.Name))
}

// UnmarshalJSON accepts either a bare stop name or an object with id/stop_id,
// name/stop_name and a fee given as a number or a numeric string.
func (r *StopRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*r = StopByName(name, 0)
		return nil
	}

	var aux struct {
		ID       string          `json:"id"`
		StopID   string          `json:"stop_id"`
		Name     string          `json:"name"`
		StopName string          `json:"stop_name"`
		Fee      json.RawMessage `json:"fee"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	fee, err := lenientFloat(aux.Fee)
	if err != nil {
		return fmt.Errorf("stop fee: %w", err)
	}
	id := strings.TrimSpace(firstNonEmpty(aux.ID, aux.StopID))
	name := strings.TrimSpace(firstNonEmpty(aux.Name, aux.StopName))
	if id == "" {
		*r = StopByName(name, fee)
		return nil
	}
	*r = StopByID(id, name, fee)
	return nil
}

func lenientFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
