package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "chargepilot/internal/adapter/actor"
	"chargepilot/internal/adapter/storage"
	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
	"chargepilot/internal/util"
	"chargepilot/pkg/e3dc"
	"chargepilot/pkg/keba"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.Enable = true
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	store := storage.NewMemoryStorage()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, store, port.NopNotifier{}, func() *adactor.WallboxActor {
			return adactor.NewWallboxActor(keba.NewTestWallboxClient(), logger)
		}, func() *adactor.E3DCActor {
			return adactor.NewE3DCActor(e3dc.NewTestReader(), logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	// live data is routed to the poller
	res, err = context.RequestFuture(pid, domain.GetLiveDataRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	liveData, ok := res.(domain.GetLiveDataResponse)
	assert.True(t, ok)
	assert.False(t, liveData.HasResponseError())
	assert.NotNil(t, liveData.LiveData)

	// wallbox status is routed to the device adapter
	res, err = context.RequestFuture(pid, domain.GetWallboxStatusRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	status, ok := res.(domain.GetWallboxStatusResponse)
	assert.True(t, ok)
	assert.False(t, status.HasResponseError())
	assert.Equal(t, keba.StateReady, status.Status.State)

	// strategy changes are routed to the controller and persisted
	res, err = context.RequestFuture(pid, domain.ChangeStrategyRequest{Strategy: domain.StrategySurplusBatteryPrio}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	changeResp, ok := res.(domain.ChangeStrategyResponse)
	assert.True(t, ok)
	assert.Equal(t, domain.StrategySurplusBatteryPrio, changeResp.Strategy)

	settings, _ := store.GetSettings()
	assert.Equal(t, domain.StrategySurplusBatteryPrio, settings.Strategy)

	context.Stop(pid)

	as.Shutdown()
}
