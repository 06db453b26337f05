package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"readiness/internal/score"
	"readiness/internal/telemetry"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(zap.NewNop(), nil)

	_, ok := reg.Latest(score.Sleep)
	assert.False(t, ok)

	var order []string
	record := func(name string) Subscriber {
		return SubscriberFunc{ID: name, Fn: func(context.Context, Update) error {
			order = append(order, name)
			return nil
		}}
	}
	reg.Subscribe(record("first"))
	unsubscribe := reg.Subscribe(record("second"))
	reg.Subscribe(record("third"))

	r := good(score.Sleep, testDay, 80)
	reg.Publish(ctx, Update{Type: score.Sleep, Day: testDay, State: Succeeded, Result: &r})
	assert.Equal(t, []string{"first", "second", "third"}, order)

	unsubscribe()
	order = nil
	reg.Publish(ctx, Update{Type: score.Sleep, Day: testDay, State: NoData})
	assert.Equal(t, []string{"first", "third"}, order)

	latest, ok := reg.Latest(score.Sleep)
	require.True(t, ok)
	assert.Equal(t, NoData, latest.State)
	assert.Nil(t, latest.Result)
}

func TestRegistrySubscriberErrors(t *testing.T) {
	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(telemetry.WithRegistry(promReg))
	reg := NewRegistry(nil, metrics)

	delivered := false
	reg.Subscribe(SubscriberFunc{ID: "broken", Fn: func(context.Context, Update) error {
		return errors.New("connection refused")
	}})
	reg.Subscribe(SubscriberFunc{ID: "ok", Fn: func(context.Context, Update) error {
		delivered = true
		return nil
	}})

	reg.Publish(context.Background(), Update{Type: score.Strain, Day: testDay, State: Failed})
	assert.True(t, delivered, "one failing subscriber must not block the others")

	families, err := promReg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, f := range families {
		if f.GetName() != "readiness_engine_publish_errors_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "subscriber" && l.GetValue() == "broken" {
					failures = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, failures)
}
