package actor

import (
	"fmt"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/e3dc"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// E3DCActor owns the Modbus link to the battery system. Requests are run
// off the actor goroutine and the actor blocks in WaitingModbus until the
// result comes back, so only one Modbus transaction is ever in flight.
type E3DCActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	reader   e3dc.Reader
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewE3DCActor(reader e3dc.Reader, logger *zap.Logger) *E3DCActor {
	act := &E3DCActor{
		reader:   reader,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_E3DC, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *E3DCActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *E3DCActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("e3dc@starting started")
		if err := state.reader.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.reader.Close()
	default:
		state.logger.Debug("e3dc@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *E3DCActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("e3dc@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_E3DC,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetLiveDataRequest:
		state.logger.Debug("e3dc@default: GetLiveDataRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getLiveData),
			mapTaskResult[domain.GetLiveDataResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetLiveDataResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetDischargeLockRequest:
		state.logger.Debug("e3dc@default: SetDischargeLockRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		enabled := msg.Enabled
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetDischargeLockResponse, error) {
			return state.setDischargeLock(enabled)
		}),
			mapTaskResult[domain.SetDischargeLockResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetDischargeLockResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Enabled: enabled,
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetGridChargeRequest:
		state.logger.Debug("e3dc@default: SetGridChargeRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		enabled := msg.Enabled
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetGridChargeResponse, error) {
			return state.setGridCharge(enabled)
		}),
			mapTaskResult[domain.SetGridChargeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetGridChargeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Enabled: enabled,
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.reader.Close()
	default:
		state.logger.Debug("e3dc@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *E3DCActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("e3dc@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.reader.Close()
	default:
		state.logger.Debug("e3dc@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *E3DCActor) getLiveData() (*domain.GetLiveDataResponse, error) {
	data, err := a.reader.LiveData()
	if err != nil {
		a.logger.Error("live data read failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetLiveDataResponse{
		LiveData: data,
	}, nil
}

func (a *E3DCActor) setDischargeLock(enabled bool) (*domain.SetDischargeLockResponse, error) {
	if err := a.reader.SetDischargeLock(enabled); err != nil {
		a.logger.Error("discharge lock write failed", zap.Bool("enabled", enabled), zap.Error(err))
		return nil, err
	}
	return &domain.SetDischargeLockResponse{
		Enabled: enabled,
	}, nil
}

func (a *E3DCActor) setGridCharge(enabled bool) (*domain.SetGridChargeResponse, error) {
	if err := a.reader.SetGridCharge(enabled); err != nil {
		a.logger.Error("grid charge write failed", zap.Bool("enabled", enabled), zap.Error(err))
		return nil, err
	}
	return &domain.SetGridChargeResponse{
		Enabled: enabled,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
