package actor

import (
	"testing"
	"time"

	adactor "chargepilot/internal/adapter/actor"
	"chargepilot/internal/config"
	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/e3dc"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func gridFreqTestConfig() config.GridFrequencyConfig {
	return config.GridFrequencyConfig{
		Tier2ThresholdHz:      0.1,
		Tier3ThresholdHz:      0.2,
		EmergencyChargeEnable: true,
		EmergencyTargetSoC:    80,
	}
}

func publishFrequency(es *eventstream.EventStream, freq float64, soc uint8) {
	es.Publish(domain.LiveDataUpdate{LiveData: &domain.LiveData{
		GridFrequencyHz:   freq,
		BatterySoCPercent: soc,
	}})
	time.Sleep(100 * time.Millisecond)
}

func TestGridFreqTierHysteresisAndNotifications(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	reader := e3dc.NewTestReader()
	e3dcPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewE3DCActor(reader, logger)
	}))

	es := &eventstream.EventStream{}
	notifier := &recordNotifier{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewGridFreqActor(e3dcPID, gridFreqTestConfig(), es, notifier, logger)
	}))

	time.Sleep(500 * time.Millisecond)

	// settle on nominal
	publishFrequency(es, 50.00, 85)
	publishFrequency(es, 50.01, 85)

	// a single deviant sample must not commit a tier
	publishFrequency(es, 49.85, 85)
	assert.Empty(t, notifier.Events())

	// the second consecutive sample commits the warning tier, notified once
	publishFrequency(es, 49.86, 85)
	assert.Equal(t, []string{port.EventGridFrequencyWarn}, notifier.Events())

	publishFrequency(es, 49.87, 85)
	assert.Equal(t, []string{port.EventGridFrequencyWarn}, notifier.Events(), "warning must notify only once per excursion")

	hcr, err := healthCheck(context, pid)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Contains(t, hcr.State, "tier_2")

	// nominal recovery re-arms the notification
	publishFrequency(es, 50.00, 85)
	publishFrequency(es, 50.00, 85)
	publishFrequency(es, 49.85, 85)
	publishFrequency(es, 49.85, 85)
	assert.Equal(t, []string{port.EventGridFrequencyWarn, port.EventGridFrequencyWarn}, notifier.Events())

	context.Stop(pid)
	context.Stop(e3dcPID)

	as.Shutdown()
}

func TestGridFreqEmergencyCharge(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	reader := e3dc.NewTestReader()
	e3dcPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewE3DCActor(reader, logger)
	}))

	es := &eventstream.EventStream{}
	notifier := &recordNotifier{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewGridFreqActor(e3dcPID, gridFreqTestConfig(), es, notifier, logger)
	}))

	time.Sleep(500 * time.Millisecond)

	// two critical samples start the emergency charge
	publishFrequency(es, 49.75, 60)
	publishFrequency(es, 49.75, 60)
	time.Sleep(500 * time.Millisecond)

	assert.Contains(t, notifier.Events(), port.EventGridFrequencyCrit)
	assert.True(t, reader.GridCharge, "critical tier should start grid charging")

	// frequency recovers but the battery has not reached target: keep going
	publishFrequency(es, 50.00, 70)
	publishFrequency(es, 50.00, 70)
	assert.True(t, reader.GridCharge, "emergency charge runs to target regardless of tier")

	// target reached: stop and notify
	publishFrequency(es, 50.00, 82)
	time.Sleep(500 * time.Millisecond)

	assert.False(t, reader.GridCharge)
	assert.Contains(t, notifier.Events(), port.EventEmergencyChargeDone)

	context.Stop(pid)
	context.Stop(e3dcPID)

	as.Shutdown()
}
