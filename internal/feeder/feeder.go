// Package feeder models one physical Bird Buddy feeder device.
package feeder

// State is the device state reported by the cloud.
type State string

const (
	StateDeepSleep           State = "DEEP_SLEEP"
	StateFactoryReset        State = "FACTORY_RESET"
	StateFirmwareUpdate      State = "FIRMWARE_UPDATE"
	StateOffline             State = "OFFLINE"
	StateOffGrid             State = "OFF_GRID"
	StateOnline              State = "ONLINE"
	StateOutOfFeeder         State = "OUT_OF_FEEDER"
	StatePendingFactoryReset State = "PENDING_FACTORY_RESET"
	StatePendingRemoval      State = "PENDING_REMOVAL"
	StateReadyToStream       State = "READY_TO_STREAM"
	StateStreaming           State = "STREAMING"
	StateTakingPostcards     State = "TAKING_POSTCARDS"
	StateUnknown             State = "UNKNOWN"
)

// MetricState is the coarse low/medium/high scale the cloud uses for battery
// level, signal quality and postcard frequency.
type MetricState string

const (
	MetricLow     MetricState = "LOW"
	MetricMedium  MetricState = "MEDIUM"
	MetricHigh    MetricState = "HIGH"
	MetricUnknown MetricState = "UNKNOWN"
)

// Battery is the feeder battery snapshot.
type Battery struct {
	Percentage int
	Charging   bool
	State      MetricState
}

// Signal is the feeder wifi signal snapshot.
type Signal struct {
	RSSI  int
	State MetricState
}

// Feeder is an immutable-on-read snapshot of one device. Updates from the
// cloud are folded in through Merge, never by mutating fields in place.
type Feeder struct {
	ID                string
	Name              string
	State             State
	Battery           Battery
	Signal            Signal
	Frequency         MetricState
	Firmware          string
	FirmwareAvailable string
	OffGrid           bool
	IsOwner           bool
}

// Merge returns a new snapshot with the update folded in. Device state,
// battery, signal, frequency and the ownership/off-grid flags are full
// snapshots in every API response and always taken from the update; name and
// firmware fields are taken only when the update carries them, since partial
// mutation responses omit them.
func (f Feeder) Merge(update Feeder) Feeder {
	merged := f

	if update.Name != "" {
		merged.Name = update.Name
	}
	if update.Firmware != "" {
		merged.Firmware = update.Firmware
	}
	merged.FirmwareAvailable = update.FirmwareAvailable

	if update.State != "" {
		merged.State = update.State
	}
	if update.Battery != (Battery{}) {
		merged.Battery = update.Battery
	}
	if update.Signal != (Signal{}) {
		merged.Signal = update.Signal
	}
	if update.Frequency != "" {
		merged.Frequency = update.Frequency
	}
	merged.OffGrid = update.OffGrid
	merged.IsOwner = update.IsOwner

	return merged
}

// UpdateAvailable reports whether newer firmware is available.
func (f Feeder) UpdateAvailable() bool {
	return f.FirmwareAvailable != "" && f.FirmwareAvailable != f.Firmware
}
