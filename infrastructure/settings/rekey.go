package settings

import "time"

const (
	// DefaultRekeyBytes is the volume after which keys are renegotiated.
	DefaultRekeyBytes ByteSize = 1 << 30
	// DefaultRekeyInterval is the key lifetime regardless of traffic.
	DefaultRekeyInterval = time.Hour
)

// Rekey holds the renegotiation thresholds. Zero values mean the defaults.
type Rekey struct {
	Bytes    ByteSize              `json:"Bytes,omitzero"`
	Interval HumanReadableDuration `json:"Interval,omitzero"`
	// TimeDisabled turns off time based rekeying.
	TimeDisabled bool `json:"TimeDisabled,omitempty"`
}

func (r Rekey) withDefaults() Rekey {
	if r.Bytes == 0 {
		r.Bytes = DefaultRekeyBytes
	}
	if r.Interval == 0 && !r.TimeDisabled {
		r.Interval = HumanReadableDuration(DefaultRekeyInterval)
	}
	if r.TimeDisabled {
		r.Interval = 0
	}
	return r
}
