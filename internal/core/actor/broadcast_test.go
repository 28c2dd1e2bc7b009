package actor

import (
	"testing"
	"time"

	adactor "chargepilot/internal/adapter/actor"
	"chargepilot/internal/adapter/storage"
	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/events"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/keba"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func broadcastWithPlug(plug int) domain.WallboxBroadcastReceived {
	return domain.WallboxBroadcastReceived{Broadcast: keba.Broadcast{Plug: &plug}}
}

func broadcastWithInput(input int) domain.WallboxBroadcastReceived {
	return domain.WallboxBroadcastReceived{Broadcast: keba.Broadcast{Input: &input}}
}

func TestBroadcastPlugBaseline(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	client := keba.NewTestWallboxClient()
	wallboxProps := actor.PropsFromProducer(func() actor.Actor { return adactor.NewWallboxActor(client, logger) })
	wallboxPID := context.Spawn(wallboxProps)

	store := storage.NewMemoryStorage()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBroadcastActor(wallboxPID, wallboxPID, store, &eventstream.EventStream{}, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	// first plug sighting seeds the baseline, no refresh
	context.Send(pid, broadcastWithPlug(keba.PlugStationVehicle))
	time.Sleep(300 * time.Millisecond)

	tracking, _ := store.GetPlugStatusTracking()
	assert.NotNil(t, tracking.LastPlugStatus)
	assert.Equal(t, keba.PlugStationVehicle, *tracking.LastPlugStatus)
	assert.Nil(t, tracking.LastPlugChange, "seeding must not count as a change")
	assert.Empty(t, client.SentCommands(), "baseline must not trigger a status refresh")

	// a real change triggers the full report refresh
	context.Send(pid, broadcastWithPlug(keba.PlugStationVehicleLocked))
	time.Sleep(500 * time.Millisecond)

	tracking, _ = store.GetPlugStatusTracking()
	assert.Equal(t, keba.PlugStationVehicleLocked, *tracking.LastPlugStatus)
	assert.NotNil(t, tracking.LastPlugChange)
	assert.Equal(t, []string{"report 2", "report 3"}, client.SentCommands())

	context.Stop(pid)
	context.Stop(wallboxPID)

	as.Shutdown()
}

func TestBroadcastInputEdges(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	client := keba.NewTestWallboxClient()
	wallboxProps := actor.PropsFromProducer(func() actor.Actor { return adactor.NewWallboxActor(client, logger) })
	wallboxPID := context.Spawn(wallboxProps)

	strategyMsgs := make(chan any, 4)
	strategyProbe := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActivateMaxPowerRequest, domain.StopChargingRequest:
			strategyMsgs <- msg
		}
	}))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBroadcastActor(wallboxPID, strategyProbe, storage.NewMemoryStorage(), &eventstream.EventStream{}, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	// first input sighting is the baseline, not an edge
	context.Send(pid, broadcastWithInput(0))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, strategyMsgs, 0)

	// rising edge activates max power
	context.Send(pid, broadcastWithInput(1))
	select {
	case msg := <-strategyMsgs:
		_, ok := msg.(domain.ActivateMaxPowerRequest)
		assert.True(t, ok, "rising edge should activate max power")
	case <-time.After(2 * time.Second):
		t.Error("no strategy request after rising edge")
	}

	// falling edge stops charging
	context.Send(pid, broadcastWithInput(0))
	select {
	case msg := <-strategyMsgs:
		_, ok := msg.(domain.StopChargingRequest)
		assert.True(t, ok, "falling edge should stop charging")
	case <-time.After(2 * time.Second):
		t.Error("no strategy request after falling edge")
	}

	context.Stop(pid)
	context.Stop(wallboxPID)

	as.Shutdown()
}

func TestBroadcastSessionEnergyEvent(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	client := keba.NewTestWallboxClient()
	wallboxProps := actor.PropsFromProducer(func() actor.Actor { return adactor.NewWallboxActor(client, logger) })
	wallboxPID := context.Spawn(wallboxProps)

	es := &eventstream.EventStream{}
	energyEvents := make(chan domain.FloatSensorUpdateEvent, 4)
	sub := es.Subscribe(func(value any) {
		if ev, ok := value.(domain.FloatSensorUpdateEvent); ok && ev.Id == events.SENSOR_ID_WALLBOX_SESSION_ENERGY {
			energyEvents <- ev
		}
	})
	defer es.Unsubscribe(sub)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBroadcastActor(wallboxPID, wallboxPID, storage.NewMemoryStorage(), es, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	// first energy sighting seeds the baseline, no event
	baseline := 51000.0 // 0.1 Wh units
	context.Send(pid, domain.WallboxBroadcastReceived{Broadcast: keba.Broadcast{SessionEnergy: &baseline}})
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, energyEvents, 0, "baseline must not publish an event")

	energy := 52340.0
	context.Send(pid, domain.WallboxBroadcastReceived{Broadcast: keba.Broadcast{SessionEnergy: &energy}})

	select {
	case ev := <-energyEvents:
		assert.InDelta(t, 5.234, ev.Value, 0.001, "session energy should be reported in kWh")
	case <-time.After(2 * time.Second):
		t.Error("no session energy event published")
	}

	// unchanged energy publishes nothing
	context.Send(pid, domain.WallboxBroadcastReceived{Broadcast: keba.Broadcast{SessionEnergy: &energy}})
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, energyEvents, 0)

	context.Stop(pid)
	context.Stop(wallboxPID)

	as.Shutdown()
}
