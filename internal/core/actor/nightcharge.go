package actor

import (
	"errors"
	"fmt"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
	"chargepilot/internal/core/service"
	. "chargepilot/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// everyMinuteCron fires on every full minute. Ticks are aligned to the
// wall clock so a configured "22:00" start is acted on at 22:00:00, not
// up to a minute later.
const everyMinuteCron = "0 * * * * *"

// NightChargeActor drives the scheduled charging window. One evaluation
// runs per minute boundary plus one immediately at startup; a tick that
// lands while a previous evaluation still talks to the devices is
// skipped, not queued. The persisted control state is written before the
// device side effects and rolled back when they fail, wallbox and
// battery independently.
type NightChargeActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler
	trigger   *quartz.CronTrigger

	wallboxActor *actor.PID
	e3dcActor    *actor.PID
	storage      port.Storage

	logger *zap.Logger
}

type nightChargeTick struct {
}

// nightChargeResult carries the outcome of one evaluation back from the
// background task. Battery and wallbox legs fail independently.
type nightChargeResult struct {
	activated   bool
	deactivated bool
	batteryErr  error
	wallboxErr  error
}

func NewNightChargeActor(wallboxActor, e3dcActor *actor.PID, storage port.Storage, logger *zap.Logger) *NightChargeActor {
	trigger, err := quartz.NewCronTrigger(everyMinuteCron)
	if err != nil {
		panic(err)
	}
	act := &NightChargeActor{
		wallboxActor: wallboxActor,
		e3dcActor:    e3dcActor,
		storage:      storage,
		trigger:      trigger,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_NIGHTCHARGE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *NightChargeActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *NightChargeActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("nightcharge@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.behavior.Become(state.DefaultReceive)
		// catch up right away, the process may have restarted mid-window
		ctx.Send(ctx.Self(), nightChargeTick{})
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("nightcharge@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *NightChargeActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("nightcharge@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_NIGHTCHARGE,
			Healthy: true,
			State:   "idle",
		})
	case nightChargeTick:
		state.logger.Debug("nightcharge@default tick")
		state.scheduleNextTick(ctx)
		state.evaluate(ctx)
	default:
		state.logger.Debug("nightcharge@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *NightChargeActor) WaitingEvaluation(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case nightChargeResult:
		state.handleResult(msg)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case nightChargeTick:
		// evaluation still running, skip this boundary entirely
		state.logger.Debug("nightcharge@waiting: tick skipped, evaluation in progress")
		state.scheduleNextTick(ctx)
	default:
		state.logger.Debug("nightcharge@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// scheduleNextTick asks the cron trigger for the next minute boundary and
// arms a one-shot timer for it.
func (state *NightChargeActor) scheduleNextTick(ctx actor.Context) {
	now := time.Now()
	next, err := state.trigger.NextFireTime(now.UnixNano())
	if err != nil {
		state.logger.Error("cron trigger failed", zap.Error(err))
		state.scheduler.RequestOnce(time.Minute, ctx.Self(), nightChargeTick{})
		return
	}
	delay := time.Duration(next - now.UnixNano())
	if delay <= 0 {
		delay = time.Second
	}
	state.scheduler.RequestOnce(delay, ctx.Self(), nightChargeTick{})
}

func (state *NightChargeActor) evaluate(ctx actor.Context) {
	settings, err := state.storage.GetSettings()
	if err != nil {
		state.logger.Error("settings load failed", zap.Error(err))
		return
	}
	controlState, err := state.storage.GetControlState()
	if err != nil {
		state.logger.Error("control state load failed", zap.Error(err))
		return
	}

	schedule := settings.NightCharging
	shouldBeActive := false
	if schedule.Enabled {
		inWindow, err := service.ClockInRange(time.Now(), schedule.StartTime, schedule.EndTime)
		if err != nil {
			state.logger.Error("invalid night charging window", zap.Error(err))
			return
		}
		shouldBeActive = inWindow
	}

	switch {
	case shouldBeActive && !controlState.NightCharging:
		state.logger.Info("night charging window entered",
			zap.String("start", schedule.StartTime), zap.String("end", schedule.EndTime))
		state.runTransition(ctx, schedule, true)
	case !shouldBeActive && controlState.NightCharging:
		state.logger.Info("night charging window left")
		state.runTransition(ctx, schedule, false)
	default:
		// persisted state already matches the schedule
	}
}

// runTransition performs the activate or deactivate side effects in a
// background task so the actor mailbox stays responsive, then pipes the
// outcome back.
func (state *NightChargeActor) runTransition(ctx actor.Context, schedule domain.NightChargingSchedule, activate bool) {
	root := ctx.ActorSystem().Root
	wallboxPID := state.wallboxActor
	e3dcPID := state.e3dcActor
	storage := state.storage
	logger := state.logger

	NewBackgroundTask(ctx, func() (*nightChargeResult, error) {
		res := &nightChargeResult{activated: activate, deactivated: !activate}

		if activate {
			// battery leg first: the discharge lock must be engaged
			// before the wallbox draws power
			res.batteryErr = service.ControlStateSaga(storage, func(cs *domain.ControlState) {
				cs.BatteryLock = true
				cs.GridCharging = schedule.GridCharging
			}, func() error {
				if err := requestChecked(root, e3dcPID, domain.SetDischargeLockRequest{Enabled: true}); err != nil {
					return err
				}
				if schedule.GridCharging {
					return requestChecked(root, e3dcPID, domain.SetGridChargeRequest{Enabled: true})
				}
				return nil
			})
			if res.batteryErr != nil {
				// without the battery locked the wallbox is never enabled
				logger.Error("night charge battery transition failed", zap.Error(res.batteryErr))
				return res, nil
			}

			res.wallboxErr = service.ControlStateSaga(storage, func(cs *domain.ControlState) {
				cs.NightCharging = true
			}, func() error {
				if err := requestChecked(root, wallboxPID, domain.SetWallboxCurrentRequest{MilliAmps: maxPowerCurrentMilliAmps}); err != nil {
					return err
				}
				return requestChecked(root, wallboxPID, domain.SetWallboxEnabledRequest{Enabled: true})
			})
			if res.wallboxErr != nil {
				// the lock stays engaged, a retry comes with the next tick
				logger.Error("night charge wallbox transition failed", zap.Error(res.wallboxErr))
			}
			return res, nil
		}

		// stop: wallbox off before the lock is released
		res.wallboxErr = service.ControlStateSaga(storage, func(cs *domain.ControlState) {
			cs.NightCharging = false
		}, func() error {
			return requestChecked(root, wallboxPID, domain.SetWallboxEnabledRequest{Enabled: false})
		})
		if res.wallboxErr != nil {
			logger.Error("night charge wallbox transition failed", zap.Error(res.wallboxErr))
		}

		// gridCharging clears unconditionally, the schedule may have been
		// edited mid-window
		res.batteryErr = service.ControlStateSaga(storage, func(cs *domain.ControlState) {
			cs.BatteryLock = false
			cs.GridCharging = false
		}, func() error {
			if err := requestChecked(root, e3dcPID, domain.SetGridChargeRequest{Enabled: false}); err != nil {
				return err
			}
			return requestChecked(root, e3dcPID, domain.SetDischargeLockRequest{Enabled: false})
		})
		if res.batteryErr != nil {
			logger.Error("night charge battery transition failed", zap.Error(res.batteryErr))
		}
		return res, nil
	}).WithTimeout(30 * time.Second).Recover(func(err error) nightChargeResult {
		return nightChargeResult{batteryErr: err}
	}).PipeTo(ctx.Self())

	state.behavior.BecomeStacked(state.WaitingEvaluation)
}

func (state *NightChargeActor) handleResult(res nightChargeResult) {
	if res.wallboxErr == nil && res.batteryErr == nil {
		if res.activated {
			state.logger.Info("night charging active")
		} else if res.deactivated {
			state.logger.Info("night charging stopped")
		}
	}
}

// requestChecked sends a request through the root context and surfaces
// both transport errors and response-level errors.
func requestChecked(root *actor.RootContext, pid *actor.PID, msg any) error {
	result, err := root.RequestFuture(pid, msg, deviceOpTimeout).Result()
	if err != nil {
		return err
	}
	if resp, ok := result.(domain.ActorResponse); ok && resp.HasResponseError() {
		return resp.GetResponseError()
	}
	if result == nil {
		return errors.New("empty response")
	}
	return nil
}
