package settings

import "time"

const (
	// DefaultServicePeriod is how often the idle manager sweeps.
	DefaultServicePeriod = 10 * time.Second
	// DefaultPeriodsPerIdle is how many silent sweeps make a connection idle.
	DefaultPeriodsPerIdle = 3
)

// Idle configures the idle state manager: a listener is idle once it has
// been inactive for ServicePeriod × PeriodsPerIdle.
type Idle struct {
	ServicePeriod  HumanReadableDuration `json:"ServicePeriod,omitzero"`
	PeriodsPerIdle int                   `json:"PeriodsPerIdle,omitzero"`
}

func (i Idle) withDefaults() Idle {
	if i.ServicePeriod <= 0 {
		i.ServicePeriod = HumanReadableDuration(DefaultServicePeriod)
	}
	if i.PeriodsPerIdle <= 0 {
		i.PeriodsPerIdle = DefaultPeriodsPerIdle
	}
	return i
}

// Threshold is the inactivity after which a listener is reported idle.
func (i Idle) Threshold() time.Duration {
	return i.ServicePeriod.Duration() * time.Duration(i.PeriodsPerIdle)
}
