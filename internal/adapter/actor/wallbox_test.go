package actor

import (
	"testing"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/keba"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWallboxActorStatusAndCommands(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	client := keba.NewTestWallboxClient()

	props := actor.PropsFromProducer(func() actor.Actor { return NewWallboxActor(client, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	// status merges report 2 and report 3
	res, err := context.RequestFuture(pid, domain.GetWallboxStatusRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	status, ok := res.(domain.GetWallboxStatusResponse)
	assert.True(t, ok)
	assert.False(t, status.HasResponseError())
	assert.Equal(t, keba.StateReady, status.Status.State)
	assert.Equal(t, keba.PlugStationVehicleLocked, status.Status.Plug)
	assert.Equal(t, keba.MinCurrentMilliAmps, status.Status.MaxCurrentMilliAmps)
	assert.Equal(t, []string{"report 2", "report 3"}, client.SentCommands())

	client.ResetCommands()

	// enable
	res, err = context.RequestFuture(pid, domain.SetWallboxEnabledRequest{Enabled: true}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	enaResp, ok := res.(domain.SetWallboxEnabledResponse)
	assert.True(t, ok)
	assert.False(t, enaResp.HasResponseError())
	assert.True(t, client.Enabled)

	// set current
	res, err = context.RequestFuture(pid, domain.SetWallboxCurrentRequest{MilliAmps: 16000}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	currResp, ok := res.(domain.SetWallboxCurrentResponse)
	assert.True(t, ok)
	assert.False(t, currResp.HasResponseError())
	assert.Equal(t, 16000, client.CurrentMilliAmps)
	assert.Equal(t, []string{"ena 1", "curr 16000"}, client.SentCommands())

	context.Stop(pid)

	as.Shutdown()
}

func TestWallboxActorBroadcastForward(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	client := keba.NewTestWallboxClient()

	props := actor.PropsFromProducer(func() actor.Actor { return NewWallboxActor(client, logger) })
	pid := context.Spawn(props)

	received := make(chan domain.WallboxBroadcastReceived, 4)
	probe := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.WallboxBroadcastReceived); ok {
			received <- msg
		}
	}))

	time.Sleep(500 * time.Millisecond)

	// broadcasts before registration are dropped
	plug := keba.PlugStationVehicle
	client.PushBroadcast(keba.Broadcast{Plug: &plug})

	context.Send(pid, RegisterBroadcastForward{Target: probe})
	time.Sleep(200 * time.Millisecond)

	input := 1
	client.PushBroadcast(keba.Broadcast{Input: &input})

	select {
	case msg := <-received:
		assert.NotNil(t, msg.Broadcast.Input)
		assert.Equal(t, 1, *msg.Broadcast.Input)
	case <-time.After(2 * time.Second):
		t.Error("broadcast was not forwarded")
	}
	assert.Len(t, received, 0, "pre-registration broadcast must not arrive")

	context.Stop(pid)

	as.Shutdown()
}

func TestWallboxActorCommandTimeout(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	client := keba.NewTestWallboxClient()
	client.FailNext = true

	props := actor.PropsFromProducer(func() actor.Actor { return NewWallboxActor(client, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.WallboxCommandRequest{Command: "report 2"}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	cmdResp, ok := res.(domain.WallboxCommandResponse)
	assert.True(t, ok)
	assert.True(t, cmdResp.HasResponseError())
	assert.True(t, keba.IsTimeout(cmdResp.GetResponseError()))

	// next command goes through again
	res, err = context.RequestFuture(pid, domain.WallboxCommandRequest{Command: "report 2"}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	cmdResp, ok = res.(domain.WallboxCommandResponse)
	assert.True(t, ok)
	assert.False(t, cmdResp.HasResponseError())

	context.Stop(pid)

	as.Shutdown()
}
