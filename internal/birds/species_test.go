package birds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		report    SightingReport
		want      string
		wantFound bool
	}{
		{
			name: "unlocked wins over recognized",
			report: SightingReport{Sightings: []Sighting{
				{Type: SightingRecognized, Species: Species{ID: "sp-1", Name: "House Finch"}},
				{Type: SightingUnlocked, Species: Species{ID: "sp-2", Name: "Indigo Bunting"}},
			}},
			want:      "Indigo Bunting",
			wantFound: true,
		},
		{
			name: "recognized wins over suggestions",
			report: SightingReport{Sightings: []Sighting{
				{Type: SightingCantDecide, Suggestions: []Suggestion{
					{Species: Species{Name: "Purple Finch"}, Confidence: 90},
				}},
				{Type: SightingRecognized, Species: Species{ID: "sp-3", Name: "Blue Jay"}},
			}},
			want:      "Blue Jay",
			wantFound: true,
		},
		{
			name: "first suggestion of undecided sighting",
			report: SightingReport{Sightings: []Sighting{
				{Type: SightingCantDecide, Suggestions: []Suggestion{
					{Species: Species{Name: "House Finch"}, Confidence: 62},
					{Species: Species{Name: "Purple Finch"}, Confidence: 35},
				}},
			}},
			want:      "House Finch",
			wantFound: true,
		},
		{
			name: "mystery visitor without suggestions resolves to nothing",
			report: SightingReport{Sightings: []Sighting{
				{Type: SightingMystery},
			}},
			wantFound: false,
		},
		{
			name: "no bird resolves to nothing",
			report: SightingReport{Sightings: []Sighting{
				{Type: SightingNoBird},
			}},
			wantFound: false,
		},
		{
			name:      "empty report",
			report:    SightingReport{},
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sp, found := tt.report.Resolve()
			require.Equal(t, tt.wantFound, found)
			if found {
				assert.Equal(t, tt.want, sp.Name)
			}
		})
	}
}

func TestSightingTypePredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, SightingRecognized.IsRecognized())
	assert.True(t, SightingUnlocked.IsRecognized())
	assert.True(t, SightingUnlocked.IsUnlocked())
	assert.False(t, SightingRecognized.IsUnlocked())
	assert.False(t, SightingCantDecide.IsRecognized())
	assert.False(t, SightingMystery.IsRecognized())
}

func TestHighestConfidence(t *testing.T) {
	t.Parallel()

	report := SightingReport{Sightings: []Sighting{
		{Type: SightingCantDecide, Suggestions: []Suggestion{
			{Species: Species{Name: "House Finch"}, Confidence: 62},
		}},
		{Type: SightingCantDecide, Suggestions: []Suggestion{
			{Species: Species{Name: "Carolina Wren"}, Confidence: 88},
			{Species: Species{Name: "House Wren"}, Confidence: 40},
		}},
	}}
	assert.Equal(t, 88, report.HighestConfidence())

	assert.Equal(t, 0, SightingReport{}.HighestConfidence())
}
