package actor

import (
	"fmt"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/events"
	"chargepilot/internal/core/port"
	"chargepilot/internal/core/service"
	. "chargepilot/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PollerActor reads the battery system on a timer and fans the snapshot
// out on the event stream. Consecutive failures stretch the interval
// through a fixed backoff ladder; the first failure and the first
// recovery each raise a notification exactly once.
type PollerActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	e3dcActor    *actor.PID
	eventStream  *eventstream.EventStream
	notifier     port.Notifier
	backoffLevel int
	lastData     *domain.LiveData

	logger *zap.Logger
}

type pollTick struct {
}

func NewPollerActor(e3dcActor *actor.PID, eventStream *eventstream.EventStream, notifier port.Notifier, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		e3dcActor:   e3dcActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream: eventStream,
		notifier:    notifier,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.behavior.Become(state.DefaultReceive)
		ctx.Send(ctx.Self(), pollTick{})
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   fmt.Sprintf("backoff_level_%d", state.backoffLevel),
		})
	case domain.GetLiveDataRequest:
		// served from the last successful read, no device round-trip
		state.logger.Debug("poller@default: GetLiveDataRequest")
		ForRequest(msg).Respond(ctx, domain.GetLiveDataResponse{
			LiveData: state.lastData,
		})
	case pollTick:
		state.logger.Debug("poller@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.e3dcActor, domain.GetLiveDataRequest{}, 3*time.Second), func(err error) any {
			return domain.GetLiveDataResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingPoll)
	default:
		state.logger.Debug("poller@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingPoll(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetLiveDataResponse:
		if msg.HasResponseError() || msg.LiveData == nil {
			state.handlePollFailure(ctx, msg.GetResponseError())
		} else {
			state.handlePollSuccess(ctx, msg.LiveData)
		}
		state.scheduler.RequestOnce(service.PollInterval(state.backoffLevel), ctx.Self(), pollTick{})
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) handlePollSuccess(ctx actor.Context, data *domain.LiveData) {
	if state.backoffLevel > 0 {
		state.logger.Info("battery system link restored", zap.Int("failedLevel", state.backoffLevel))
		state.notifier.TriggerEvent(port.EventConnectionRestored, "battery system connection restored")
		state.eventStream.Publish(domain.PollerConnectionEvent{Connected: true, Level: 0})
	}
	state.backoffLevel = 0
	state.lastData = data

	state.eventStream.Publish(domain.LiveDataUpdate{LiveData: data})
	state.eventStream.Publish(events.LinkStateUpdateEvent(true))
	for _, ev := range events.LiveDataToUpdateEvents(data) {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) handlePollFailure(ctx actor.Context, err error) {
	prev := state.backoffLevel
	state.backoffLevel = service.NextBackoffLevel(state.backoffLevel)
	state.logger.Error("poll failed", zap.Int("backoffLevel", state.backoffLevel), zap.Error(err))
	if prev == 0 {
		state.notifier.TriggerEvent(port.EventConnectionLost, "battery system connection lost")
		state.eventStream.Publish(domain.PollerConnectionEvent{Connected: false, Level: state.backoffLevel})
		state.eventStream.Publish(events.LinkStateUpdateEvent(false))
	}
}
