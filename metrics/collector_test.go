package metrics

import (
	"testing"

	"github.com/opd-ai/jack"
	"github.com/opd-ai/jack/jacktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats jack.Stats

func (f fixedStats) Stats() jack.Stats { return jack.Stats(f) }

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func valueFor(mf *dto.MetricFamily, client string) (float64, bool) {
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == LabelClient && l.GetValue() == client {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue(), true
				}
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestNewCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = NewCollector(reg)
	assert.Error(t, err, "registering twice must fail")

	unregistered, err := NewCollector(nil)
	require.NoError(t, err)
	assert.NotNil(t, unregistered)
}

func TestCollectorExportsTrackedStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.Track("synth", fixedStats{ProcessCycles: 10, ProcessFailures: 2, XRuns: 1, SampleRate: 44100, Connects: 3, Disconnects: 1})
	c.Track("drums", fixedStats{ProcessCycles: 5})

	families := gather(t, reg)
	cases := []struct {
		metric string
		client string
		want   float64
	}{
		{"jack_client_process_cycles_total", "synth", 10},
		{"jack_client_process_failures_total", "synth", 2},
		{"jack_client_xruns_total", "synth", 1},
		{"jack_client_sample_rate_hz", "synth", 44100},
		{"jack_client_port_connects_total", "synth", 3},
		{"jack_client_port_disconnects_total", "synth", 1},
		{"jack_client_process_cycles_total", "drums", 5},
	}
	for _, tc := range cases {
		mf, ok := families[tc.metric]
		require.True(t, ok, tc.metric)
		got, ok := valueFor(mf, tc.client)
		require.True(t, ok, "%s{client=%s}", tc.metric, tc.client)
		assert.Equal(t, tc.want, got, "%s{client=%s}", tc.metric, tc.client)
	}
	assert.Contains(t, families, "jack_handlers_live")
	assert.Contains(t, families, "jack_handlers_installed_total")
	assert.Contains(t, families, "jack_handlers_released_total")

	assert.Equal(t, []string{"drums", "synth"}, c.Tracked())
}

func TestCollectorUntrack(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)

	c.Track("a", fixedStats{})
	// six per-client series plus three process-wide ones
	assert.Equal(t, 9, testutil.CollectAndCount(c))

	c.Untrack("a")
	assert.Equal(t, 3, testutil.CollectAndCount(c))
	assert.Empty(t, c.Tracked())
}

func TestCollectorWithSimulatedClient(t *testing.T) {
	srv := jacktest.NewServer()
	client, _, err := jack.Open(srv, "sim", jack.NoStartServer)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SetProcessHandler(jack.ProcessFunc(func(*jack.CallbackContext, uint32) int { return 0 })))
	require.NoError(t, client.Activate())
	srv.Cycle(64)
	srv.Cycle(64)

	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.Track("sim", client)

	got, ok := valueFor(gather(t, reg)["jack_client_process_cycles_total"], "sim")
	require.True(t, ok)
	assert.Equal(t, float64(2), got)
}
