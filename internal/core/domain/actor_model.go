package domain

import (
	"chargepilot/pkg/keba"
)

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_WALLBOX     = "wallbox"
	ACTOR_ID_E3DC        = "e3dc"
	ACTOR_ID_POLLER      = "poller"
	ACTOR_ID_BROADCAST   = "broadcast"
	ACTOR_ID_STRATEGY    = "strategy"
	ACTOR_ID_NIGHTCHARGE = "nightcharge"
	ACTOR_ID_GRIDFREQ    = "gridfreq"
	ACTOR_ID_MQTT        = "mqtt"
)

// Wallbox link messages

type WallboxCommandRequest struct {
	ActorRequestMixIn
	Command string
	// FireAndForget skips the reply round-trip.
	FireAndForget bool
}

type WallboxCommandResponse struct {
	ActorResponseMixIn
	Response keba.Response
}

type GetWallboxStatusRequest struct {
	ActorRequestMixIn
}

type GetWallboxStatusResponse struct {
	ActorResponseMixIn
	Status keba.WallboxStatus
}

type SetWallboxEnabledRequest struct {
	ActorRequestMixIn
	Enabled bool
}

type SetWallboxEnabledResponse struct {
	ActorResponseMixIn
}

type SetWallboxCurrentRequest struct {
	ActorRequestMixIn
	MilliAmps int
}

type SetWallboxCurrentResponse struct {
	ActorResponseMixIn
}

// WallboxBroadcastReceived carries an unsolicited device message from the
// wallbox adapter to the broadcast listener.
type WallboxBroadcastReceived struct {
	Broadcast keba.Broadcast
}

// Battery system messages

type GetLiveDataRequest struct {
	ActorRequestMixIn
}

type GetLiveDataResponse struct {
	ActorResponseMixIn
	LiveData *LiveData
}

type SetDischargeLockRequest struct {
	ActorRequestMixIn
	Enabled bool
}

type SetDischargeLockResponse struct {
	ActorResponseMixIn
	Enabled bool
}

type SetGridChargeRequest struct {
	ActorRequestMixIn
	Enabled bool
}

type SetGridChargeResponse struct {
	ActorResponseMixIn
	Enabled bool
}

// Strategy controller messages

type ChangeStrategyRequest struct {
	ActorRequestMixIn
	Strategy ChargingStrategy
}

type ChangeStrategyResponse struct {
	ActorResponseMixIn
	Strategy ChargingStrategy
}

// ActivateMaxPowerRequest is the low-latency path used by the X1 input and
// the manual start action: enable the wallbox first, reconcile the battery
// lock asynchronously.
type ActivateMaxPowerRequest struct {
	ActorRequestMixIn
	Strategy ChargingStrategy
}

type ActivateMaxPowerResponse struct {
	ActorResponseMixIn
}

// StopChargingRequest stops the wallbox without forcing the strategy off.
type StopChargingRequest struct {
	ActorRequestMixIn
}

type StopChargingResponse struct {
	ActorResponseMixIn
}

// LiveDataUpdate is published on the event stream by the poller after every
// successful read. Fan-out is synchronous and fire-and-forget; there is no
// replay.
type LiveDataUpdate struct {
	LiveData *LiveData
}

// PollerConnectionEvent is published when the poller transitions between
// backoff level 0 and a failed state, exactly once per transition.
type PollerConnectionEvent struct {
	Connected bool
	Level     int
}

// Health check

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
