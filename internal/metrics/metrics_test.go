package metrics_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/abrw/reqfilter/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, metrics.StatusOK, metrics.StatusLabel(nil))
	assert.Equal(t, metrics.StatusError, metrics.StatusLabel(errors.Error("test")))
}

func TestStoreOps(t *testing.T) {
	t.Parallel()

	c := metrics.StoreOps.WithLabelValues("test", metrics.StatusOK)
	before := testutil.ToFloat64(c)
	c.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
