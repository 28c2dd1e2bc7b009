package actor

import (
	"errors"
	"testing"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/e3dc"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestE3DCActor(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	reader := e3dc.NewTestReader()

	props := actor.PropsFromProducer(func() actor.Actor { return NewE3DCActor(reader, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	// health check
	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, health.Healthy)

	// live data round-trip
	res, err = context.RequestFuture(pid, domain.GetLiveDataRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	liveData, ok := res.(domain.GetLiveDataResponse)
	assert.True(t, ok)
	assert.False(t, liveData.HasResponseError())
	assert.NotNil(t, liveData.LiveData)
	assert.Equal(t, int32(3000), liveData.LiveData.PVPowerWatt)
	assert.Equal(t, int32(-2500), liveData.LiveData.GridPowerWatt, "grid should balance pv against house")
	assert.Equal(t, uint8(75), liveData.LiveData.BatterySoCPercent)

	// discharge lock write
	res, err = context.RequestFuture(pid, domain.SetDischargeLockRequest{Enabled: true}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	lockResp, ok := res.(domain.SetDischargeLockResponse)
	assert.True(t, ok)
	assert.False(t, lockResp.HasResponseError())
	assert.True(t, lockResp.Enabled)
	assert.True(t, reader.DischargeLock)

	// grid charge write
	res, err = context.RequestFuture(pid, domain.SetGridChargeRequest{Enabled: true}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	chargeResp, ok := res.(domain.SetGridChargeResponse)
	assert.True(t, ok)
	assert.False(t, chargeResp.HasResponseError())
	assert.True(t, reader.GridCharge)

	context.Stop(pid)

	as.Shutdown()
}

func TestE3DCActorReadFailure(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	reader := e3dc.NewTestReader()
	reader.FailReads = true
	reader.ReadErr = errors.New("modbus: connection reset")

	props := actor.PropsFromProducer(func() actor.Actor { return NewE3DCActor(reader, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.GetLiveDataRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	liveData, ok := res.(domain.GetLiveDataResponse)
	assert.True(t, ok)
	assert.True(t, liveData.HasResponseError(), "read failure should surface as response error")
	assert.Nil(t, liveData.LiveData)

	// the actor must stay responsive after a failed read
	res, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, health.Healthy)

	context.Stop(pid)

	as.Shutdown()
}
