package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"3:41:22", "3:41:22"},
		{"03:41:22", "3:41:22"},
		{"3.41.22", "3:41:22"},
		{" 41:22 ", "41:22"},
		{"7:05", "7:05"},
	}
	for _, tc := range cases {
		got, err := NormalizeTime(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestNormalizeTime_Rejects(t *testing.T) {
	for _, raw := range []string{"", "DNF", "3:41:99", "99:75:00", "3h41m"} {
		_, err := NormalizeTime(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseFinishDuration(t *testing.T) {
	d, err := ParseFinishDuration("3:41:22")
	require.NoError(t, err)
	assert.Equal(t, 3*3600+41*60+22, int(d.Seconds()))

	d, err = ParseFinishDuration("41:22")
	require.NoError(t, err)
	assert.Equal(t, 41*60+22, int(d.Seconds()))
}

func TestDerivePace(t *testing.T) {
	// 3:30:00 over a marathon is almost exactly 8:01/mi.
	pace, err := DerivePace("3:30:00", MilesMarathon)
	require.NoError(t, err)
	assert.Equal(t, "8:01/mi", pace)

	pace, err = DerivePace("1:45:00", MilesHalfMarathon)
	require.NoError(t, err)
	assert.Equal(t, "8:01/mi", pace)
}

func TestDerivePace_InvalidDistance(t *testing.T) {
	_, err := DerivePace("3:30:00", 0)
	assert.Error(t, err)
}

func TestDistanceForEvent(t *testing.T) {
	assert.Equal(t, MilesMarathon, DistanceForEvent("Marathon"))
	assert.Equal(t, MilesMarathon, DistanceForEvent("full marathon"))
	assert.Equal(t, MilesHalfMarathon, DistanceForEvent("Half Marathon"))
	assert.Equal(t, Miles10K, DistanceForEvent("10K"))
	assert.Equal(t, 0.0, DistanceForEvent("fun run"))
}
