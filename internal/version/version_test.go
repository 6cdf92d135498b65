package version

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInfoMatchesGetters(t *testing.T) {
	v, c, d := Info()
	require.NotEmpty(t, v)
	require.Equal(t, v, GetVersion())
	require.Equal(t, c, GetCommit())
	require.Equal(t, d, GetDate())
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		require.True(t, strings.Contains(s, part), s)
	}
}

func TestFields(t *testing.T) {
	fields := Fields()
	require.Equal(t, GetVersion(), fields["version"])
	require.Equal(t, GetCommit(), fields["commit"])
}

func TestBuildInfoCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewBuildInfoCollector()
	require.NoError(t, reg.Register(collector))

	count, err := testutil.GatherAndCount(reg, "commerce_build_info")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	expected := `
# HELP commerce_build_info Build information of the commerce service.
# TYPE commerce_build_info gauge
commerce_build_info{commit="` + GetCommit() + `",date="` + GetDate() + `",version="` + GetVersion() + `"} 1
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected)))
}
