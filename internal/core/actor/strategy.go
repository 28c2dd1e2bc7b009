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

const (
	maxPowerCurrentMilliAmps = 32000
	fallbackTickInterval     = 15 * time.Second
	deviceOpTimeout          = 12 * time.Second
)

// StrategyActor runs the charging strategy state machine. It normally
// ticks on live-data updates from the event stream; a fallback timer
// keeps it ticking off cached data when the poller goes quiet. Device
// command sequences run one at a time through the WaitingDevice state,
// with a wallbox rollback when the battery-lock leg of a start fails.
type StrategyActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	wallboxActor *actor.PID
	e3dcActor    *actor.PID
	pollerActor  *actor.PID
	storage      port.Storage
	eventStream  *eventstream.EventStream
	sub          *eventstream.Subscription

	settings   domain.Settings
	chargeCtx  domain.ChargingContext
	debouncer  service.StartStopDebouncer
	cancelTick scheduler.CancelFunc
	pendingOp  *chargeOp

	logger *zap.Logger
}

type strategyFallbackTick struct {
}

type eventStreamMessage struct {
	message any
}

type opKind int

const (
	opStart opKind = iota
	opMaxPower
	opAdjust
	opStop
)

// chargeOp is a multi-step device command sequence. Steps advance as the
// per-step responses come back in WaitingDevice.
type chargeOp struct {
	kind         opKind
	strategy     domain.ChargingStrategy
	targetAmpere int
	lockBattery  bool
	unlockAfter  bool
	rollingBack  bool
	step         int
	replyTo      *actor.PID
}

func NewStrategyActor(wallboxActor, e3dcActor, pollerActor *actor.PID, storage port.Storage, eventStream *eventstream.EventStream, logger *zap.Logger) *StrategyActor {
	act := &StrategyActor{
		wallboxActor: wallboxActor,
		e3dcActor:    e3dcActor,
		pollerActor:  pollerActor,
		storage:      storage,
		eventStream:  eventStream,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_STRATEGY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *StrategyActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StrategyActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("strategy@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		settings, err := state.storage.GetSettings()
		if err != nil {
			state.logger.Warn("settings load failed, starting with defaults", zap.Error(err))
		} else {
			state.settings = settings
		}
		chargeCtx, err := state.storage.GetChargingContext()
		if err != nil {
			state.logger.Warn("charging context load failed, starting fresh", zap.Error(err))
		} else {
			state.chargeCtx = chargeCtx
		}

		state.sub = state.eventStream.Subscribe(func(value any) {
			ctx.Send(ctx.Self(), eventStreamMessage{message: value})
		})
		state.armFallbackTick(ctx)

		state.eventStream.Publish(events.StrategyUpdateEvent(state.currentStrategy()))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("strategy@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StrategyActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("strategy@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STRATEGY,
			Healthy: true,
			State:   string(state.currentStrategy()),
		})
	case eventStreamMessage:
		if update, ok := msg.message.(domain.LiveDataUpdate); ok && update.LiveData != nil {
			state.armFallbackTick(ctx)
			state.processTick(ctx, update.LiveData)
		}
	case strategyFallbackTick:
		state.logger.Debug("strategy@default fallback tick")
		state.armFallbackTick(ctx)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pollerActor, domain.GetLiveDataRequest{}, 1*time.Second), func(err error) any {
			return domain.GetLiveDataResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.GetLiveDataResponse:
		// cached snapshot requested by the fallback tick
		if !msg.HasResponseError() && msg.LiveData != nil {
			state.processTick(ctx, msg.LiveData)
		}
	case domain.ChangeStrategyRequest:
		state.logger.Info("strategy@default: ChangeStrategyRequest", zap.String("strategy", msg.Strategy.String()))
		state.handleStrategyChange(ctx, msg)
	case domain.ActivateMaxPowerRequest:
		state.logger.Info("strategy@default: ActivateMaxPowerRequest", zap.String("strategy", msg.Strategy.String()))
		state.handleActivateMaxPower(ctx, msg)
	case domain.StopChargingRequest:
		state.logger.Info("strategy@default: StopChargingRequest")
		replyTo := ForRequest(msg).ReplyTo(ctx)
		if !state.chargeCtx.IsActive {
			if replyTo != nil {
				ctx.Send(replyTo, domain.StopChargingResponse{})
			}
			return
		}
		state.beginOp(ctx, &chargeOp{
			kind:        opStop,
			strategy:    state.currentStrategy(),
			unlockAfter: state.batteryLocked(),
			replyTo:     replyTo,
		})
	case *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("strategy@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// WaitingDevice holds the actor while a chargeOp is in flight. Live-data
// ticks are dropped (they would decide on stale state), everything else
// waits.
func (state *StrategyActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SetWallboxCurrentResponse:
		state.advanceOp(ctx, msg.GetResponseError())
	case domain.SetWallboxEnabledResponse:
		state.advanceOp(ctx, msg.GetResponseError())
	case domain.SetDischargeLockResponse:
		state.advanceOp(ctx, msg.GetResponseError())
	case eventStreamMessage:
		if _, ok := msg.message.(domain.LiveDataUpdate); ok {
			return
		}
		state.stash.Stash(ctx, msg)
	case strategyFallbackTick:
	case *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("strategy@waitingDevice: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// Tick processing

func (state *StrategyActor) processTick(ctx actor.Context, data *domain.LiveData) {
	// settings may have been edited through the API since the last tick
	if settings, err := state.storage.GetSettings(); err == nil {
		state.settings = settings
	}
	strategy := state.currentStrategy()
	if strategy == domain.StrategyOff || strategy.IsMax() {
		return
	}
	cfg := state.settings.StrategyConfig
	if !cfg.Complete() {
		state.logger.Warn("strategy config incomplete, skipping tick")
		return
	}
	controlState, err := state.storage.GetControlState()
	if err == nil && controlState.NightCharging {
		// night charging owns the wallbox for now
		state.logger.Debug("strategy@tick paused by night charging")
		return
	}

	now := time.Now()
	surplus := service.AvailableSurplusWatt(data, strategy)
	action := state.debouncer.Decide(now, surplus, cfg, state.chargeCtx.IsActive)

	switch action {
	case service.ActionStart:
		target := service.TargetCurrentAmpere(surplus, cfg.PhysicalPhaseSwitch)
		state.logger.Info("surplus start", zap.Float64("surplusWatt", surplus), zap.Int("targetAmpere", target))
		state.beginOp(ctx, &chargeOp{
			kind:         opStart,
			strategy:     strategy,
			targetAmpere: target,
			lockBattery:  strategy.NeedsDischargeLock(),
		})
	case service.ActionStop:
		state.logger.Info("surplus stop", zap.Float64("surplusWatt", surplus))
		state.beginOp(ctx, &chargeOp{
			kind:        opStop,
			strategy:    strategy,
			unlockAfter: state.batteryLocked(),
		})
	case service.ActionNone:
		if !state.chargeCtx.IsActive {
			return
		}
		target := service.TargetCurrentAmpere(surplus, cfg.PhysicalPhaseSwitch)
		if service.AllowCurrentChange(state.chargeCtx.CurrentAmpere, target, state.chargeCtx.LastChange, now, cfg) {
			state.logger.Info("surplus adjust", zap.Int("fromAmpere", state.chargeCtx.CurrentAmpere), zap.Int("toAmpere", target))
			state.beginOp(ctx, &chargeOp{
				kind:         opAdjust,
				strategy:     strategy,
				targetAmpere: target,
			})
		}
	}
}

// Strategy changes

func (state *StrategyActor) handleStrategyChange(ctx actor.Context, msg domain.ChangeStrategyRequest) {
	replyTo := ForRequest(msg).ReplyTo(ctx)
	if !msg.Strategy.Valid() {
		if replyTo != nil {
			ctx.Send(replyTo, domain.ChangeStrategyResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown charging strategy %q", msg.Strategy),
				},
			})
		}
		return
	}

	state.persistStrategy(msg.Strategy)
	state.debouncer.Reset()
	state.eventStream.Publish(events.StrategyUpdateEvent(msg.Strategy))

	if replyTo != nil {
		ctx.Send(replyTo, domain.ChangeStrategyResponse{Strategy: msg.Strategy})
	}

	switch {
	case msg.Strategy == domain.StrategyOff:
		if state.chargeCtx.IsActive {
			state.beginOp(ctx, &chargeOp{
				kind:        opStop,
				strategy:    msg.Strategy,
				unlockAfter: state.batteryLocked(),
			})
		}
	case msg.Strategy.IsMax():
		state.beginOp(ctx, &chargeOp{
			kind:         opMaxPower,
			strategy:     msg.Strategy,
			targetAmpere: maxPowerCurrentMilliAmps / 1000,
			lockBattery:  msg.Strategy.NeedsDischargeLock(),
		})
	default:
		// surplus strategies start from ticks; an active max charge is
		// stopped so the debouncer decides fresh
		if state.chargeCtx.IsActive && state.chargeCtx.Strategy.IsMax() {
			state.beginOp(ctx, &chargeOp{
				kind:        opStop,
				strategy:    msg.Strategy,
				unlockAfter: state.batteryLocked(),
			})
		}
	}
}

func (state *StrategyActor) handleActivateMaxPower(ctx actor.Context, msg domain.ActivateMaxPowerRequest) {
	replyTo := ForRequest(msg).ReplyTo(ctx)
	strategy := msg.Strategy
	if strategy == "" {
		strategy = state.settings.StrategyConfig.InputX1Strategy
	}
	if !strategy.Valid() {
		if replyTo != nil {
			ctx.Send(replyTo, domain.ActivateMaxPowerResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown charging strategy %q", strategy),
				},
			})
		}
		return
	}

	state.persistStrategy(strategy)
	state.debouncer.Reset()
	state.eventStream.Publish(events.StrategyUpdateEvent(strategy))
	if replyTo != nil {
		ctx.Send(replyTo, domain.ActivateMaxPowerResponse{})
	}

	if strategy.IsMax() {
		state.beginOp(ctx, &chargeOp{
			kind:         opMaxPower,
			strategy:     strategy,
			targetAmpere: maxPowerCurrentMilliAmps / 1000,
			lockBattery:  strategy.NeedsDischargeLock(),
		})
	}
}

// Device op step machine

func (state *StrategyActor) beginOp(ctx actor.Context, op *chargeOp) {
	state.pendingOp = op
	state.behavior.BecomeStacked(state.WaitingDevice)
	state.sendStep(ctx)
}

func (state *StrategyActor) advanceOp(ctx actor.Context, err error) {
	op := state.pendingOp
	if op == nil {
		state.finishOp(ctx)
		return
	}
	if err != nil {
		state.failOp(ctx, err)
		return
	}
	if op.rollingBack {
		state.logger.Warn("rollback complete, wallbox disabled again")
		state.finishOp(ctx)
		return
	}
	op.step++
	if state.sendStep(ctx) {
		return
	}
	state.commitOp(ctx)
}

// sendStep issues the device request for the op's current step. It
// returns false when the op has no steps left.
func (state *StrategyActor) sendStep(ctx actor.Context) bool {
	op := state.pendingOp
	switch op.kind {
	case opStart:
		switch op.step {
		case 0:
			state.requestCurrent(ctx, op.targetAmpere*1000)
		case 1:
			state.requestEnable(ctx, true)
		case 2:
			if !op.lockBattery {
				return false
			}
			state.requestLock(ctx, true)
		default:
			return false
		}
	case opMaxPower:
		// enable first: this is the low-latency path
		switch op.step {
		case 0:
			state.requestEnable(ctx, true)
		case 1:
			state.requestCurrent(ctx, maxPowerCurrentMilliAmps)
		case 2:
			if !op.lockBattery {
				return false
			}
			state.requestLock(ctx, true)
		default:
			return false
		}
	case opAdjust:
		if op.step > 0 {
			return false
		}
		state.requestCurrent(ctx, op.targetAmpere*1000)
	case opStop:
		switch op.step {
		case 0:
			state.requestEnable(ctx, false)
		case 1:
			if !op.unlockAfter {
				return false
			}
			state.requestLock(ctx, false)
		default:
			return false
		}
	}
	return true
}

func (state *StrategyActor) failOp(ctx actor.Context, err error) {
	op := state.pendingOp
	state.logger.Error("charge op step failed", zap.Int("kind", int(op.kind)), zap.Int("step", op.step), zap.Error(err))

	if op.rollingBack {
		// rollback itself failed, nothing left to try
		state.logger.Error("rollback failed, wallbox may still be enabled", zap.Error(err))
		state.finishOp(ctx)
		return
	}

	switch op.kind {
	case opStart, opMaxPower:
		if opWallboxEnabled(op) {
			// wallbox already enabled but a later step failed: undo the
			// enable so no partial activation remains
			op.rollingBack = true
			state.requestEnable(ctx, false)
			return
		}
	case opStop:
		if op.step == 1 {
			// wallbox already off, the unlock failure is its own
			// failure domain; the stop itself stands
			state.logger.Warn("discharge unlock failed after stop", zap.Error(err))
			op.unlockAfter = false
			state.commitOp(ctx)
			return
		}
	}
	state.finishOp(ctx)
}

// opWallboxEnabled reports whether the op's enable step already succeeded,
// so a failure at the current step leaves the wallbox switched on.
func opWallboxEnabled(op *chargeOp) bool {
	switch op.kind {
	case opStart:
		return op.step >= 2
	case opMaxPower:
		return op.step >= 1
	}
	return false
}

func (state *StrategyActor) commitOp(ctx actor.Context) {
	op := state.pendingOp
	now := time.Now()
	switch op.kind {
	case opStart, opMaxPower:
		state.chargeCtx.Strategy = op.strategy
		state.chargeCtx.IsActive = true
		state.chargeCtx.CurrentAmpere = op.targetAmpere
		state.chargeCtx.TargetAmpere = op.targetAmpere
		state.chargeCtx.CurrentPhases = state.settings.StrategyConfig.PhysicalPhaseSwitch
		state.chargeCtx.AdjustmentCount = 0
		state.chargeCtx.LastChange = now
		if op.lockBattery {
			state.setBatteryLocked(true)
		}
	case opAdjust:
		state.chargeCtx.CurrentAmpere = op.targetAmpere
		state.chargeCtx.TargetAmpere = op.targetAmpere
		state.chargeCtx.AdjustmentCount++
		state.chargeCtx.LastChange = now
	case opStop:
		state.chargeCtx.Reset()
		if op.unlockAfter {
			state.setBatteryLocked(false)
		}
	}
	if err := state.storage.SaveChargingContext(state.chargeCtx); err != nil {
		state.logger.Error("charging context save failed", zap.Error(err))
	}
	state.finishOp(ctx)
}

func (state *StrategyActor) finishOp(ctx actor.Context) {
	state.pendingOp = nil
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// Device requests

func (state *StrategyActor) requestEnable(ctx actor.Context, enabled bool) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.wallboxActor, domain.SetWallboxEnabledRequest{Enabled: enabled}, deviceOpTimeout), func(err error) any {
		return domain.SetWallboxEnabledResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *StrategyActor) requestCurrent(ctx actor.Context, milliAmps int) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.wallboxActor, domain.SetWallboxCurrentRequest{MilliAmps: milliAmps}, deviceOpTimeout), func(err error) any {
		return domain.SetWallboxCurrentResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *StrategyActor) requestLock(ctx actor.Context, enabled bool) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.e3dcActor, domain.SetDischargeLockRequest{Enabled: enabled}, deviceOpTimeout), func(err error) any {
		return domain.SetDischargeLockResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Enabled: enabled,
		}
	})
}

// Helpers

func (state *StrategyActor) currentStrategy() domain.ChargingStrategy {
	if state.settings.Strategy == "" {
		return domain.StrategyOff
	}
	return state.settings.Strategy
}

// persistStrategy stores a strategy change through a fresh read of the
// settings blob, so fields edited elsewhere are not clobbered.
func (state *StrategyActor) persistStrategy(strategy domain.ChargingStrategy) {
	settings, err := state.storage.GetSettings()
	if err != nil {
		state.logger.Error("settings load failed", zap.Error(err))
		settings = state.settings
	}
	settings.Strategy = strategy
	state.settings = settings
	if err := state.storage.SaveSettings(settings); err != nil {
		state.logger.Error("settings save failed", zap.Error(err))
	}
}

func (state *StrategyActor) batteryLocked() bool {
	controlState, err := state.storage.GetControlState()
	if err != nil {
		return false
	}
	return controlState.BatteryLock
}

func (state *StrategyActor) setBatteryLocked(locked bool) {
	controlState, err := state.storage.GetControlState()
	if err != nil {
		state.logger.Error("control state load failed", zap.Error(err))
		return
	}
	controlState.BatteryLock = locked
	if err := state.storage.SaveControlState(controlState); err != nil {
		state.logger.Error("control state save failed", zap.Error(err))
	}
}

func (state *StrategyActor) armFallbackTick(ctx actor.Context) {
	if state.cancelTick != nil {
		state.cancelTick()
	}
	state.cancelTick = state.scheduler.RequestOnce(fallbackTickInterval, ctx.Self(), strategyFallbackTick{})
}

func (state *StrategyActor) unsubscribe() {
	if state.sub != nil {
		state.eventStream.Unsubscribe(state.sub)
		state.sub = nil
	}
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
