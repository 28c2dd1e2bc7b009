package actor

import (
	"fmt"
	"log"
	"time"

	adactor "chargepilot/internal/adapter/actor"
	"chargepilot/internal/config"
	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
	"chargepilot/internal/mqtt"
	. "chargepilot/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type WallboxActorProvider func() *adactor.WallboxActor

type E3DCActorProvider func() *adactor.E3DCActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// MasterActor owns the whole tree: device adapters, the poller, the
// broadcast listener, the controllers and the optional MQTT bridge. The
// device adapters restart under exponential backoff, the controllers
// restart one-for-one.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	storage            port.Storage
	notifier           port.Notifier

	wallboxActor     *actor.PID
	e3dcActor        *actor.PID
	pollerActor      *actor.PID
	broadcastActor   *actor.PID
	strategyActor    *actor.PID
	nightChargeActor *actor.PID
	gridFreqActor    *actor.PID
	mqttActor        *actor.PID

	wallboxProvider WallboxActorProvider
	e3dcProvider    E3DCActorProvider
	mqttProvider    MQTTActorProvider

	logger *zap.Logger
}

type healthCheckResult struct {
	healthyById    map[string]bool
	checksExpected int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterActor(cfg config.Config, storage port.Storage, notifier port.Notifier,
	wallboxProvider WallboxActorProvider, e3dcProvider E3DCActorProvider, mqttProvider MQTTActorProvider,
	logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:          cfg,
		behavior:        actor.NewBehavior(),
		stash:           &Stash{},
		logger:          ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:     &eventstream.EventStream{},
		storage:         storage,
		notifier:        notifier,
		wallboxProvider: wallboxProvider,
		e3dcProvider:    e3dcProvider,
		mqttProvider:    mqttProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		var err error
		if state.wallboxActor, err = state.startBackoffChild(ctx, domain.ACTOR_ID_WALLBOX, func() actor.Actor {
			return state.wallboxProvider()
		}); err != nil {
			panic(err)
		}
		if state.e3dcActor, err = state.startBackoffChild(ctx, domain.ACTOR_ID_E3DC, func() actor.Actor {
			return state.e3dcProvider()
		}); err != nil {
			panic(err)
		}
		if state.pollerActor, err = state.startRestartChild(ctx, domain.ACTOR_ID_POLLER, func() actor.Actor {
			return NewPollerActor(state.e3dcActor, state.eventStream, state.notifier, state.logger)
		}); err != nil {
			panic(err)
		}
		if state.strategyActor, err = state.startRestartChild(ctx, domain.ACTOR_ID_STRATEGY, func() actor.Actor {
			return NewStrategyActor(state.wallboxActor, state.e3dcActor, state.pollerActor, state.storage, state.eventStream, state.logger)
		}); err != nil {
			panic(err)
		}
		if state.broadcastActor, err = state.startRestartChild(ctx, domain.ACTOR_ID_BROADCAST, func() actor.Actor {
			return NewBroadcastActor(state.wallboxActor, state.strategyActor, state.storage, state.eventStream, state.logger)
		}); err != nil {
			panic(err)
		}
		if state.nightChargeActor, err = state.startRestartChild(ctx, domain.ACTOR_ID_NIGHTCHARGE, func() actor.Actor {
			return NewNightChargeActor(state.wallboxActor, state.e3dcActor, state.storage, state.logger)
		}); err != nil {
			panic(err)
		}
		if state.gridFreqActor, err = state.startRestartChild(ctx, domain.ACTOR_ID_GRIDFREQ, func() actor.Actor {
			return NewGridFreqActor(state.e3dcActor, state.config.GridFrequency, state.eventStream, state.notifier, state.logger)
		}); err != nil {
			panic(err)
		}
		if state.config.MQTT.Enable {
			if state.mqttActor, err = state.startBackoffChild(ctx, domain.ACTOR_ID_MQTT, func() actor.Actor {
				return state.mqttProvider(state.eventStream)
			}); err != nil {
				panic(err)
			}
		}

		// unsolicited wallbox datagrams flow to the broadcast listener
		ctx.Send(state.wallboxActor, adactor.RegisterBroadcastForward{Target: state.broadcastActor})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.healthCheckTargets() {
			state.currentHealthCheck.checksExpected++
			childID := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childID,
					Healthy: false,
				}
			})
		}
		ctx.SetReceiveTimeout(1 * time.Second)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetLiveDataRequest:
		ctx.RequestWithCustomSender(state.pollerActor, msg, ctx.Sender())
	case domain.GetWallboxStatusRequest:
		ctx.RequestWithCustomSender(state.wallboxActor, msg, ctx.Sender())
	case domain.WallboxCommandRequest:
		ctx.RequestWithCustomSender(state.wallboxActor, msg, ctx.Sender())
	case domain.SetDischargeLockRequest:
		ctx.RequestWithCustomSender(state.e3dcActor, msg, ctx.Sender())
	case domain.SetGridChargeRequest:
		ctx.RequestWithCustomSender(state.e3dcActor, msg, ctx.Sender())
	case domain.ChangeStrategyRequest:
		ctx.RequestWithCustomSender(state.strategyActor, msg, ctx.Sender())
	case domain.ActivateMaxPowerRequest:
		ctx.RequestWithCustomSender(state.strategyActor, msg, ctx.Sender())
	case domain.StopChargingRequest:
		ctx.RequestWithCustomSender(state.strategyActor, msg, ctx.Sender())
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			if req := parsedCommandToRequest(*msg.Command); req != nil {
				ctx.Send(state.strategyActor, req)
			}
		}
	case *actor.Terminated:
		// a device adapter that gives up on boot takes the tree down
		if msg.Who.GetId() == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_WALLBOX) ||
			msg.Who.GetId() == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_E3DC) {
			state.logger.Error("master@default device adapter terminated", zap.String("who", msg.Who.GetId()))
			panic(fmt.Errorf("%s terminated", msg.Who.GetId()))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthyById[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) healthCheckTargets() map[string]*actor.PID {
	targets := map[string]*actor.PID{
		domain.ACTOR_ID_WALLBOX:     state.wallboxActor,
		domain.ACTOR_ID_E3DC:        state.e3dcActor,
		domain.ACTOR_ID_POLLER:      state.pollerActor,
		domain.ACTOR_ID_BROADCAST:   state.broadcastActor,
		domain.ACTOR_ID_STRATEGY:    state.strategyActor,
		domain.ACTOR_ID_NIGHTCHARGE: state.nightChargeActor,
		domain.ACTOR_ID_GRIDFREQ:    state.gridFreqActor,
	}
	if state.mqttActor != nil {
		targets[domain.ACTOR_ID_MQTT] = state.mqttActor
	}
	return targets
}

func (state *MasterActor) startBackoffChild(ctx actor.Context, id string, producer func() actor.Actor) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	props := actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, id)
}

func (state *MasterActor) startRestartChild(ctx actor.Context, id string, producer func() actor.Actor) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)
	props := actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, id)
}

// parsedCommandToRequest maps a bridge command onto a strategy request.
// Unknown devices and payloads map to nil.
func parsedCommandToRequest(cmd mqtt.ParsedMQTTCommand) any {
	switch cmd.Command {
	case "switch":
		if cmd.DeviceId != "charging" {
			return nil
		}
		if cmd.Payload == mqtt.MQTT_PAYLOAD_ON {
			return domain.ActivateMaxPowerRequest{}
		}
		if cmd.Payload == mqtt.MQTT_PAYLOAD_OFF {
			return domain.StopChargingRequest{}
		}
	case "strategy":
		strategy, err := domain.ParseChargingStrategy(cmd.Payload)
		if err != nil {
			return nil
		}
		return domain.ChangeStrategyRequest{Strategy: strategy}
	}
	return nil
}

func (state *healthCheckResult) reset() {
	state.healthyById = map[string]bool{}
	state.checksExpected = 0
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.checksExpected
}

func (state *healthCheckResult) allHealthy() bool {
	healthy := 0
	for _, ok := range state.healthyById {
		if ok {
			healthy++
		}
	}
	return healthy == state.checksExpected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
