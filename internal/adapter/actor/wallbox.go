package actor

import (
	"fmt"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/keba"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// RegisterBroadcastForward tells the wallbox actor where unsolicited
// device messages should go. Until it arrives broadcasts are dropped.
type RegisterBroadcastForward struct {
	Target *actor.PID
}

// WallboxActor owns the UDP link to the charging station. Commands go
// through the single-request client one at a time; the actor parks in
// WaitingWallbox while a command round-trip is running so a second
// command can never interleave with the first.
type WallboxActor struct {
	behavior        actor.Behavior
	stash           *actorutil.Stash
	client          keba.Client
	broadcastTarget *actor.PID
	logger          *zap.Logger
}

func NewWallboxActor(client keba.Client, logger *zap.Logger) *WallboxActor {
	act := &WallboxActor{
		client:   client,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_WALLBOX, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *WallboxActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *WallboxActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("wallbox@starting started")
		// The handler runs on the client's read goroutine; route through
		// the root context, which is safe to use off the actor goroutine.
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.client.SetBroadcastHandler(func(b keba.Broadcast) {
			root.Send(self, domain.WallboxBroadcastReceived{Broadcast: b})
		})
		if err := state.client.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.client.Close()
	default:
		state.logger.Debug("wallbox@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *WallboxActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("wallbox@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_WALLBOX,
			Healthy: true,
			State:   "idle",
		})
	case RegisterBroadcastForward:
		state.broadcastTarget = msg.Target
	case domain.WallboxBroadcastReceived:
		if state.broadcastTarget != nil {
			ctx.Send(state.broadcastTarget, msg)
		}
	case domain.WallboxCommandRequest:
		state.logger.Debug("wallbox@default: WallboxCommandRequest", zap.String("command", msg.Command))
		if msg.FireAndForget {
			if err := state.client.SendFireAndForget(msg.Command); err != nil {
				state.logger.Error("fire and forget send failed", zap.String("command", msg.Command), zap.Error(err))
			}
			return
		}
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		command := msg.Command
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.WallboxCommandResponse, error) {
			return state.sendCommand(command)
		}),
			mapTaskResult[domain.WallboxCommandResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WallboxCommandResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingWallbox)
	case domain.GetWallboxStatusRequest:
		state.logger.Debug("wallbox@default: GetWallboxStatusRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getStatus),
			mapTaskResult[domain.GetWallboxStatusResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetWallboxStatusResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingWallbox)
	case domain.SetWallboxEnabledRequest:
		state.logger.Debug("wallbox@default: SetWallboxEnabledRequest", zap.Bool("enabled", msg.Enabled))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		enabled := msg.Enabled
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetWallboxEnabledResponse, error) {
			return state.setEnabled(enabled)
		}),
			mapTaskResult[domain.SetWallboxEnabledResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetWallboxEnabledResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingWallbox)
	case domain.SetWallboxCurrentRequest:
		state.logger.Debug("wallbox@default: SetWallboxCurrentRequest", zap.Int("milliAmps", msg.MilliAmps))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		milliAmps := msg.MilliAmps
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetWallboxCurrentResponse, error) {
			return state.setCurrent(milliAmps)
		}),
			mapTaskResult[domain.SetWallboxCurrentResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetWallboxCurrentResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingWallbox)
	case *actor.Stopping:
		state.client.Close()
	default:
		state.logger.Debug("wallbox@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *WallboxActor) WaitingWallbox(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("wallbox@WaitingWallbox backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.WallboxBroadcastReceived:
		// Broadcasts are not replies, no reason to hold them back.
		if state.broadcastTarget != nil {
			ctx.Send(state.broadcastTarget, msg)
		}
	case *actor.Stopping:
		state.client.Close()
	default:
		state.logger.Debug("wallbox@WaitingWallbox stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *WallboxActor) sendCommand(command string) (*domain.WallboxCommandResponse, error) {
	resp, err := a.client.Send(command)
	if err != nil {
		a.logger.Error("command failed", zap.String("command", command), zap.Error(err))
		return nil, err
	}
	return &domain.WallboxCommandResponse{
		Response: resp,
	}, nil
}

func (a *WallboxActor) getStatus() (*domain.GetWallboxStatusResponse, error) {
	r2, err := a.reportCommand(keba.CommandReport2)
	if err != nil {
		return nil, err
	}
	r3, err := a.reportCommand(keba.CommandReport3)
	if err != nil {
		return nil, err
	}
	return &domain.GetWallboxStatusResponse{
		Status: keba.StatusFromReports(r2, r3),
	}, nil
}

func (a *WallboxActor) reportCommand(command string) (keba.Report, error) {
	resp, err := a.client.Send(command)
	if err != nil {
		a.logger.Error("report failed", zap.String("command", command), zap.Error(err))
		return keba.Report{}, err
	}
	report, ok := resp.(keba.Report)
	if !ok {
		return keba.Report{}, fmt.Errorf("unexpected %q response type %T", command, resp)
	}
	return report, nil
}

func (a *WallboxActor) setEnabled(enabled bool) (*domain.SetWallboxEnabledResponse, error) {
	if _, err := a.client.Send(keba.EnableCommand(enabled)); err != nil {
		a.logger.Error("enable failed", zap.Bool("enabled", enabled), zap.Error(err))
		return nil, err
	}
	return &domain.SetWallboxEnabledResponse{}, nil
}

func (a *WallboxActor) setCurrent(milliAmps int) (*domain.SetWallboxCurrentResponse, error) {
	if _, err := a.client.Send(keba.CurrentCommand(milliAmps)); err != nil {
		a.logger.Error("set current failed", zap.Int("milliAmps", milliAmps), zap.Error(err))
		return nil, err
	}
	return &domain.SetWallboxCurrentResponse{}, nil
}
