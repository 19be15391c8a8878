package profiling

import (
	"testing"

	"github.com/attachtrack/attachtrack-api/config"
	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfileTypes_Default(t *testing.T) {
	got, err := parseProfileTypes("")
	require.NoError(t, err)
	assert.Equal(t, defaultProfileTypes, got)
}

func TestParseProfileTypes_Custom(t *testing.T) {
	got, err := parseProfileTypes("cpu, alloc_space,mutex")
	require.NoError(t, err)

	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileMutexCount,
		pyroscope.ProfileMutexDuration,
	}, got)
}

func TestParseProfileTypes_Invalid(t *testing.T) {
	_, err := parseProfileTypes("cpu,unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported O11Y_PROFILING_SAMPLE_TYPES")
}

func TestParseProfileTypes_DuplicatesAndBlanks(t *testing.T) {
	got, err := parseProfileTypes("cpu,,CPU, goroutines")
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileGoroutines}, got)
}

func TestTags_AsMapSkipsEmpty(t *testing.T) {
	got := Tags{Environment: "production", InstanceID: "inst-1"}.asMap()
	assert.Equal(t, map[string]string{"environment": "production", "instance": "inst-1"}, got)
}

func TestInitProfiler_Disabled(t *testing.T) {
	stop, err := InitProfiler(config.ProfilingConfig{Enabled: false}, Tags{})
	require.NoError(t, err)
	stop()

	_, err = InitProfiler(config.ProfilingConfig{Enabled: true}, Tags{})
	assert.Error(t, err)
}
