package actor

import (
	"fmt"
	"time"

	"chargepilot/internal/config"
	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/events"
	"chargepilot/internal/core/port"
	"chargepilot/internal/core/service"
	. "chargepilot/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// GridFreqActor watches the grid frequency carried by the live-data
// stream. Tier changes are committed only after two consecutive readings
// agree, each alarm tier notifies once until the grid returns to nominal,
// and a critical tier can start an emergency battery charge that runs to
// its target SoC even if the frequency recovers first.
type GridFreqActor struct {
	behavior actor.Behavior
	stash    *Stash

	e3dcActor   *actor.PID
	cfg         config.GridFrequencyConfig
	eventStream *eventstream.EventStream
	sub         *eventstream.Subscription
	notifier    port.Notifier

	tracker      *service.TierTracker
	gridState    domain.GridFrequencyState
	warnNotified bool
	critNotified bool
	emergencyRun bool

	logger *zap.Logger
}

func NewGridFreqActor(e3dcActor *actor.PID, cfg config.GridFrequencyConfig, eventStream *eventstream.EventStream, notifier port.Notifier, logger *zap.Logger) *GridFreqActor {
	act := &GridFreqActor{
		e3dcActor:   e3dcActor,
		cfg:         cfg,
		eventStream: eventStream,
		notifier:    notifier,
		tracker:     service.NewTierTracker(),
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_GRIDFREQ, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *GridFreqActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *GridFreqActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("gridfreq@starting started")
		state.sub = state.eventStream.Subscribe(func(value any) {
			if update, ok := value.(domain.LiveDataUpdate); ok {
				ctx.Send(ctx.Self(), update)
			}
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("gridfreq@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GridFreqActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("gridfreq@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_GRIDFREQ,
			Healthy: true,
			State:   fmt.Sprintf("tier_%d", state.tracker.Current()),
		})
	case domain.LiveDataUpdate:
		if msg.LiveData == nil {
			return
		}
		state.handleReading(ctx, msg.LiveData)
	case domain.SetGridChargeResponse:
		if msg.HasResponseError() {
			state.logger.Error("emergency charge command failed", zap.Bool("enabled", msg.Enabled), zap.Error(msg.GetResponseError()))
			if msg.Enabled {
				// failed to start, allow the next critical commit to retry
				state.emergencyRun = false
				state.gridState.ChargingActive = false
			}
			return
		}
		state.gridState.ChargingActive = msg.Enabled
		if !msg.Enabled {
			state.notifier.TriggerEvent(port.EventEmergencyChargeDone, "emergency battery charge finished")
		}
	case *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("gridfreq@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *GridFreqActor) handleReading(ctx actor.Context, data *domain.LiveData) {
	thresholds := service.FrequencyThresholds{
		Tier2Hz: state.cfg.Tier2ThresholdHz,
		Tier3Hz: state.cfg.Tier3ThresholdHz,
	}
	tier := service.ClassifyFrequency(data.GridFrequencyHz, thresholds)
	committed, changed := state.tracker.Update(tier)

	state.gridState.Frequency = data.GridFrequencyHz
	state.gridState.Deviation = data.GridFrequencyHz - service.NominalGridFrequencyHz
	state.gridState.LastUpdate = time.Now()

	if changed {
		state.gridState.Tier = committed
		state.logger.Info("grid frequency tier changed",
			zap.Int("tier", committed), zap.Float64("frequency", data.GridFrequencyHz))
		state.eventStream.Publish(events.GridFrequencyTierUpdateEvent(committed))
		state.onTierCommitted(ctx, committed, data)
	}

	// an emergency charge keeps running until the battery reaches target,
	// regardless of where the tier went in the meantime
	if state.emergencyRun && state.gridState.ChargingActive &&
		data.BatterySoCPercent >= state.cfg.EmergencyTargetSoC {
		state.logger.Info("emergency charge target reached", zap.Uint8("soc", data.BatterySoCPercent))
		state.emergencyRun = false
		state.requestGridCharge(ctx, false)
	}
}

func (state *GridFreqActor) onTierCommitted(ctx actor.Context, tier int, data *domain.LiveData) {
	switch tier {
	case service.TierNominal:
		// re-arm the notifications for the next excursion
		state.warnNotified = false
		state.critNotified = false
	case service.TierWarning:
		if !state.warnNotified {
			state.warnNotified = true
			state.notifier.TriggerEvent(port.EventGridFrequencyWarn,
				fmt.Sprintf("grid frequency %.2f Hz", data.GridFrequencyHz))
		}
	case service.TierCritical:
		if !state.critNotified {
			state.critNotified = true
			state.notifier.TriggerEvent(port.EventGridFrequencyCrit,
				fmt.Sprintf("grid frequency %.2f Hz", data.GridFrequencyHz))
		}
		if state.cfg.EmergencyChargeEnable && !state.emergencyRun &&
			data.BatterySoCPercent < state.cfg.EmergencyTargetSoC {
			state.logger.Info("starting emergency battery charge",
				zap.Uint8("soc", data.BatterySoCPercent), zap.Uint8("targetSoc", state.cfg.EmergencyTargetSoC))
			state.emergencyRun = true
			state.requestGridCharge(ctx, true)
		}
	}
}

func (state *GridFreqActor) requestGridCharge(ctx actor.Context, enabled bool) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.e3dcActor, domain.SetGridChargeRequest{Enabled: enabled}, deviceOpTimeout), func(err error) any {
		return domain.SetGridChargeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Enabled: enabled,
		}
	})
}

func (state *GridFreqActor) unsubscribe() {
	if state.sub != nil {
		state.eventStream.Unsubscribe(state.sub)
		state.sub = nil
	}
}
