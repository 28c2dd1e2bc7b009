package actor

import (
	"fmt"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/events"
	"chargepilot/internal/core/port"
	. "chargepilot/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// BroadcastActor reacts to unsolicited wallbox datagrams. Each field
// baselines on its first sighting and only a changed value triggers a
// reaction, so the burst of broadcasts on startup does not fire stale
// edges. The X1 input edge is the low-latency path to the strategy
// controller.
type BroadcastActor struct {
	behavior actor.Behavior
	stash    *Stash

	wallboxActor  *actor.PID
	strategyActor *actor.PID
	storage       port.Storage
	eventStream   *eventstream.EventStream

	plugTracking domain.PlugStatusTracking
	lastState    *int
	lastInput    *int
	lastEnergy   *float64

	logger *zap.Logger
}

func NewBroadcastActor(wallboxActor *actor.PID, strategyActor *actor.PID, storage port.Storage, eventStream *eventstream.EventStream, logger *zap.Logger) *BroadcastActor {
	act := &BroadcastActor{
		wallboxActor:  wallboxActor,
		strategyActor: strategyActor,
		storage:       storage,
		eventStream:   eventStream,
		behavior:      actor.NewBehavior(),
		stash:         &Stash{},
		logger:        ActorLogger(domain.ACTOR_ID_BROADCAST, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *BroadcastActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *BroadcastActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("broadcast@starting started")
		tracking, err := state.storage.GetPlugStatusTracking()
		if err != nil {
			state.logger.Warn("plug tracking load failed, starting empty", zap.Error(err))
		} else {
			state.plugTracking = tracking
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("broadcast@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BroadcastActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("broadcast@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BROADCAST,
			Healthy: true,
			State:   "idle",
		})
	case domain.WallboxBroadcastReceived:
		state.logger.Debug("broadcast@default: WallboxBroadcastReceived")
		state.handleBroadcast(ctx, msg)
	case domain.GetWallboxStatusResponse:
		state.logger.Debug("broadcast@default: GetWallboxStatusResponse")
		if msg.HasResponseError() {
			state.logger.Error("status refresh failed", zap.Error(msg.GetResponseError()))
			return
		}
		for _, ev := range events.WallboxStatusToUpdateEvents(msg.Status) {
			state.eventStream.Publish(ev)
		}
	default:
		state.logger.Debug("broadcast@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *BroadcastActor) handleBroadcast(ctx actor.Context, msg domain.WallboxBroadcastReceived) {
	b := msg.Broadcast
	refresh := false

	if b.Plug != nil {
		if state.plugTracking.Observe(*b.Plug, time.Now()) {
			state.logger.Info("plug status changed", zap.Int("plug", *b.Plug))
			refresh = true
		}
		if err := state.storage.SavePlugStatusTracking(state.plugTracking); err != nil {
			state.logger.Error("plug tracking save failed", zap.Error(err))
		}
	}

	if b.State != nil {
		if state.lastState != nil && *state.lastState != *b.State {
			state.logger.Info("wallbox state changed", zap.Int("state", *b.State))
			refresh = true
		}
		state.lastState = b.State
	}

	if b.Input != nil {
		if state.lastInput != nil && *state.lastInput != *b.Input {
			state.handleInputEdge(ctx, *state.lastInput, *b.Input)
		}
		state.lastInput = b.Input
	}

	if b.SessionEnergy != nil {
		if state.lastEnergy != nil && *state.lastEnergy != *b.SessionEnergy {
			state.eventStream.Publish(events.SessionEnergyUpdateEvent(*b.SessionEnergy))
		}
		state.lastEnergy = b.SessionEnergy
	}

	if refresh {
		// full report round-trip, reply handled in DefaultReceive
		ctx.RequestWithCustomSender(state.wallboxActor, domain.GetWallboxStatusRequest{}, ctx.Self())
	}
}

func (state *BroadcastActor) handleInputEdge(ctx actor.Context, prev, cur int) {
	switch {
	case prev == 0 && cur == 1:
		state.logger.Info("input X1 rising edge, activating max power")
		ctx.Send(state.strategyActor, domain.ActivateMaxPowerRequest{})
	case prev == 1 && cur == 0:
		state.logger.Info("input X1 falling edge, stopping charge")
		ctx.Send(state.strategyActor, domain.StopChargingRequest{})
	}
}
