package feeder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeKeepsNameAndFirmwareWhenUpdateOmitsThem(t *testing.T) {
	t.Parallel()

	existing := Feeder{
		ID:        "feeder-a",
		Name:      "Garden Feeder",
		State:     StateOnline,
		Battery:   Battery{Percentage: 80, State: MetricHigh},
		Signal:    Signal{RSSI: -55, State: MetricMedium},
		Frequency: MetricMedium,
		Firmware:  "1.2.3",
		IsOwner:   true,
	}

	// Partial mutation responses carry only device state.
	update := Feeder{
		ID:      "feeder-a",
		State:   StateDeepSleep,
		OffGrid: true,
		IsOwner: true,
	}

	merged := existing.Merge(update)
	assert.Equal(t, "Garden Feeder", merged.Name)
	assert.Equal(t, "1.2.3", merged.Firmware)
	assert.Equal(t, StateDeepSleep, merged.State)
	assert.True(t, merged.OffGrid)
	assert.Equal(t, 80, merged.Battery.Percentage, "zero battery snapshot must not clobber")
	assert.Equal(t, -55, merged.Signal.RSSI)
	assert.Equal(t, MetricMedium, merged.Frequency)
}

func TestMergeTakesFullSnapshots(t *testing.T) {
	t.Parallel()

	existing := Feeder{
		ID:      "feeder-a",
		Name:    "Garden Feeder",
		Battery: Battery{Percentage: 80, State: MetricHigh},
	}
	update := Feeder{
		ID:        "feeder-a",
		Name:      "Balcony Feeder",
		Battery:   Battery{Percentage: 20, Charging: true, State: MetricLow},
		Frequency: MetricHigh,
		Firmware:  "1.3.0",
	}

	merged := existing.Merge(update)
	assert.Equal(t, "Balcony Feeder", merged.Name)
	assert.Equal(t, 20, merged.Battery.Percentage)
	assert.True(t, merged.Battery.Charging)
	assert.Equal(t, MetricHigh, merged.Frequency)
	assert.Equal(t, "1.3.0", merged.Firmware)

	// Merge never mutates the receiver.
	assert.Equal(t, "Garden Feeder", existing.Name)
}

func TestUpdateAvailable(t *testing.T) {
	t.Parallel()

	f := Feeder{Firmware: "1.2.3"}
	assert.False(t, f.UpdateAvailable())

	f.FirmwareAvailable = "1.2.3"
	assert.False(t, f.UpdateAvailable())

	f.FirmwareAvailable = "1.3.0"
	assert.True(t, f.UpdateAvailable())
}
