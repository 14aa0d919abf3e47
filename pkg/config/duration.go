package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
)

// Duration is a time.Duration configured either as a number of seconds,
// or as a duration string such as "1m30s".
type Duration time.Duration

// ParseDuration parses a number of seconds or a duration string.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return seconds(secs), nil
	}
	d, err := cast.ToDurationE(s)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return Duration(d), nil
}

func seconds(s float64) Duration {
	return Duration(s * float64(time.Second))
}

// Duration returns the time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Seconds returns the duration in seconds, without trailing zeros.
func (d Duration) Seconds() string {
	return strconv.FormatFloat(time.Duration(d).Seconds(), 'f', -1, 64)
}

// DecimalSeconds returns the duration in seconds with at least one
// fractional digit, such as "1.0" or "0.25".
func (d Duration) DecimalSeconds() string {
	s := d.Seconds()
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) fromAny(v any) error {
	switch val := v.(type) {
	case string:
		p, err := ParseDuration(val)
		if err != nil {
			return err
		}
		*d = p
	case nil:
		*d = 0
	case bool:
		return errors.Newf("invalid duration: %v", v)
	default:
		secs, err := cast.ToFloat64E(val)
		if err != nil {
			return errors.Newf("invalid duration: %v", v)
		}
		*d = seconds(secs)
	}
	return nil
}

// UnmarshalYAML implements the yaml Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	return d.fromAny(v)
}

// MarshalYAML implements the yaml Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.WithStack(err)
	}
	return d.fromAny(v)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
