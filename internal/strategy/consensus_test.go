package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

func TestAggregateLondonScenario(t *testing.T) {
	snap, err := Aggregate(domain.Celsius, map[string]float64{
		"ecmwf": 15.4,
		"gfs":   15.6,
		"icon":  16.1,
	}, DefaultAnchorModel)
	require.NoError(t, err)

	assert.Equal(t, "16°C", snap.Bucket)
	assert.Equal(t, 2, snap.Agreement)
	assert.False(t, snap.AnchorAgrees)
	assert.Equal(t, map[string]string{"ecmwf": "15°C", "gfs": "16°C", "icon": "16°C"}, snap.ModelBuckets)
	assert.Equal(t, []string{"gfs", "icon"}, Agreeing(snap))
}

func TestAggregateUnanimous(t *testing.T) {
	snap, err := Aggregate(domain.Fahrenheit, map[string]float64{
		"ecmwf": 72.1,
		"gfs":   73.9,
		"icon":  72.8,
	}, DefaultAnchorModel)
	require.NoError(t, err)

	assert.Equal(t, "72 to 73°F", snap.Bucket)
	assert.Equal(t, 3, snap.Agreement)
	assert.True(t, snap.AnchorAgrees)
}

func TestAggregateTieBreakIsDeterministic(t *testing.T) {
	values := map[string]float64{"ecmwf": 16.0, "gfs": 15.0}
	for i := 0; i < 50; i++ {
		snap, err := Aggregate(domain.Celsius, values, DefaultAnchorModel)
		require.NoError(t, err)
		assert.Equal(t, "15°C", snap.Bucket)
		assert.Equal(t, 1, snap.Agreement)
		assert.False(t, snap.AnchorAgrees)
	}

	// Byte-wise ordering puts "10°C" ahead of "9°C".
	snap, err := Aggregate(domain.Celsius, map[string]float64{"gfs": 9.0, "icon": 10.0}, DefaultAnchorModel)
	require.NoError(t, err)
	assert.Equal(t, "10°C", snap.Bucket)
}

func TestAggregateAgreementBounds(t *testing.T) {
	inputs := []map[string]float64{
		{"ecmwf": 1},
		{"ecmwf": 1, "gfs": 5},
		{"ecmwf": 1, "gfs": 1.2, "icon": 7},
		{"ecmwf": 20.2, "gfs": 20.4, "icon": 19.8, "ukmo": 20.1},
	}
	for _, in := range inputs {
		snap, err := Aggregate(domain.Celsius, in, DefaultAnchorModel)
		require.NoError(t, err)
		assert.LessOrEqual(t, snap.Agreement, len(in))
		assert.GreaterOrEqual(t, snap.Agreement, 1)

		distinct := map[string]bool{}
		for _, b := range snap.ModelBuckets {
			distinct[b] = true
		}
		assert.Equal(t, len(distinct) == 1, snap.Agreement == len(in))
	}
}

func TestAggregateMissingAnchor(t *testing.T) {
	snap, err := Aggregate(domain.Celsius, map[string]float64{"gfs": 12, "icon": 12}, DefaultAnchorModel)
	require.NoError(t, err)
	assert.Equal(t, "12°C", snap.Bucket)
	assert.False(t, snap.AnchorAgrees)
}

func TestAggregateErrors(t *testing.T) {
	_, err := Aggregate(domain.Celsius, nil, DefaultAnchorModel)
	assert.ErrorIs(t, err, domain.ErrNoForecasts)

	_, err = Aggregate(domain.Unit("X"), map[string]float64{"gfs": 1}, DefaultAnchorModel)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
