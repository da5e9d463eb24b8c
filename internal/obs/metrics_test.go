// Copyright 2025 James Ross
package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thieman/deferrable/internal/events"
	"github.com/thieman/deferrable/internal/item"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserverRecordsEachEventType(t *testing.T) {
	before := testutil.ToFloat64(PushTotal)
	obs := MetricsObserver()
	obs.OnPush(&item.Item{})
	assert.Equal(t, before+1, testutil.ToFloat64(PushTotal))

	beforeErr := testutil.ToFloat64(DebounceErrorTotal)
	obs.OnDebounceErr(&item.Item{})
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(DebounceErrorTotal))
}

func TestRecordEventIgnoresUnknownType(t *testing.T) {
	before := testutil.ToFloat64(PushTotal)
	RecordEvent(events.Type("unknown"))
	assert.Equal(t, before, testutil.ToFloat64(PushTotal))
}
