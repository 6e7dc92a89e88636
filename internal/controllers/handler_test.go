package controllers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_bus/internal/apperr"
)

func TestNumberAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		err  bool
	}{
		{`12.5`, 12.5, false},
		{`"40"`, 40, false},
		{`" 7 "`, 7, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n number
			err := json.Unmarshal([]byte(tt.in), &n)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, float64(n))
		})
	}
}

func TestPatchBodyRef(t *testing.T) {
	var body patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"bus_id": null, "route_id": "r1", "driver_id": "", "stop": 4}`), &body))

	ref, err := body.ref("bus_id")
	require.NoError(t, err)
	assert.True(t, ref.Present)
	assert.Nil(t, ref.ID)

	ref, err = body.ref("route_id")
	require.NoError(t, err)
	assert.True(t, ref.Present)
	require.NotNil(t, ref.ID)
	assert.Equal(t, "r1", *ref.ID)

	ref, err = body.ref("driver_id")
	require.NoError(t, err)
	assert.True(t, ref.Present)
	assert.Nil(t, ref.ID, "empty string unassigns")

	ref, err = body.ref("missing")
	require.NoError(t, err)
	assert.False(t, ref.Present)

	_, err = body.ref("stop")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPatchBodyRequiredRef(t *testing.T) {
	var body patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"bus_id": null, "driverId": "D1"}`), &body))

	ref, err := body.requiredRef("bus_id")
	require.NoError(t, err)
	assert.True(t, ref.Present)
	assert.Nil(t, ref.ID)

	_, err = body.requiredRef("driver_id")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "driver_id is required")
}

func TestPatchBodyFields(t *testing.T) {
	var body patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"name": " North ", "fee": "250", "can_add_stop": true, "ignored": 1}`), &body))

	fields, err := body.fields(map[string]fieldKind{
		"name":         textField,
		"fee":          numberField,
		"can_add_stop": boolField,
		"latitude":     numberField,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "North", "fee": 250.0, "can_add_stop": true}, fields)

	require.NoError(t, json.Unmarshal([]byte(`{"name": 3}`), &body))
	_, err = body.fields(map[string]fieldKind{"name": textField})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGeometryRoundTrip(t *testing.T) {
	line := `{"type":"LineString","coordinates":[[77.59,12.97],[77.6,12.98]]}`

	wkbBytes, err := parseAndConvertGeometry(json.RawMessage(line))
	require.NoError(t, err)
	require.NotEmpty(t, wkbBytes)

	out, err := convertWKBToGeoJSON(wkbBytes)
	require.NoError(t, err)
	assert.JSONEq(t, line, out)

	quoted, err := json.Marshal(line)
	require.NoError(t, err)
	fromString, err := parseAndConvertGeometry(quoted)
	require.NoError(t, err)
	assert.Equal(t, wkbBytes, fromString)
}

func TestGeometryRejectsOtherShapes(t *testing.T) {
	_, err := parseAndConvertGeometry(json.RawMessage(`{"type":"Point","coordinates":[77.59,12.97]}`))
	assert.Error(t, err)

	_, err = parseAndConvertGeometry(json.RawMessage(`{"type":"LineString"`))
	assert.Error(t, err)

	empty, err := parseAndConvertGeometry(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, empty)

	out, err := convertWKBToGeoJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2024-06-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, d.Hour())

	d, err = parseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseDate("01/06/2024")
	assert.Error(t, err)
}
