package timeseries

import (
	"bytes"
	"encoding/json"
	"strconv"

	"defilens/pkg/errors"
)

// Point serializes as a [timestamp, value] tuple to keep the wire contract
// consumers already parse. On decode, both tuple slots tolerate JSON strings
// because some upstream charts quote their timestamps.

func (p Point) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, p.Ts, 10)
	buf = append(buf, ',')
	buf = strconv.AppendFloat(buf, p.Value, 'f', -1, 64)
	buf = append(buf, ']')
	return buf, nil
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "point must be a [timestamp, value] pair")
	}
	ts, err := flexFloat(raw[0])
	if err != nil {
		return errors.Wrap(err, "invalid point timestamp")
	}
	v, err := flexFloat(raw[1])
	if err != nil {
		return errors.Wrap(err, "invalid point value")
	}
	p.Ts = NormalizeTimestamp(ts)
	p.Value = v
	return nil
}

func flexFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
