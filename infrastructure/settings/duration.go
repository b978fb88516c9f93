package settings

import (
	"encoding/json"
	"time"
)

// HumanReadableDuration is a time.Duration that travels through JSON as a
// Go duration string such as "90s" or "1h".
type HumanReadableDuration time.Duration

func (d HumanReadableDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d HumanReadableDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *HumanReadableDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = HumanReadableDuration(duration)
	return nil
}

type DialTimeoutMs int

func (d DialTimeoutMs) Int() int {
	return int(d)
}

func (d DialTimeoutMs) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}
