package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	BatchesTotal.WithLabelValues("optimal").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(BatchesTotal.WithLabelValues("optimal")), 1.0)

	families, err := Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dashroute_batches_total"])
	assert.True(t, names["go_goroutines"])
}
