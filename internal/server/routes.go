package server

import (
	"net/http"
	"time"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/service"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const actorRequestTimeout = 10 * time.Second

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/status", s.StatusHandler)
	api.GET("/controlstate", s.GetControlStateHandler)
	api.PUT("/controlstate", s.PutControlStateHandler)
	api.GET("/strategy", s.GetStrategyHandler)
	api.PUT("/strategy", s.PutStrategyHandler)
	api.POST("/charging/start", s.StartChargingHandler)
	api.POST("/charging/stop", s.StopChargingHandler)
	api.GET("/settings", s.GetSettingsHandler)
	api.PUT("/settings", s.PutSettingsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, actorRequestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "fail", "version": versioninfo.Short()})
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "version": versioninfo.Short()})
	}
	return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "fail", "version": versioninfo.Short()})
}

type statusResponse struct {
	LiveData *domain.LiveData `json:"liveData"`
	Wallbox  *wallboxStatus   `json:"wallbox,omitempty"`
}

type wallboxStatus struct {
	State            int     `json:"state"`
	Plug             int     `json:"plug"`
	Charging         bool    `json:"charging"`
	ActivePhases     int     `json:"activePhases"`
	PowerWatt        float64 `json:"powerWatt"`
	SessionEnergyKWh float64 `json:"sessionEnergyKWh"`
}

func (s *Server) StatusHandler(c echo.Context) error {
	var status statusResponse

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLiveDataRequest{}, actorRequestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if response, ok := res.(domain.GetLiveDataResponse); ok && !response.HasResponseError() {
		status.LiveData = response.LiveData
	}

	res, err = s.rootContext.RequestFuture(s.masterActor, domain.GetWallboxStatusRequest{}, actorRequestTimeout).Result()
	if err == nil {
		if response, ok := res.(domain.GetWallboxStatusResponse); ok && !response.HasResponseError() {
			status.Wallbox = &wallboxStatus{
				State:            response.Status.State,
				Plug:             response.Status.Plug,
				Charging:         response.Status.Charging(),
				ActivePhases:     response.Status.ActivePhases(),
				PowerWatt:        response.Status.PowerMilliWatt / 1000,
				SessionEnergyKWh: response.Status.SessionEnergy / 10000,
			}
		}
	}

	return c.JSON(http.StatusOK, status)
}

func (s *Server) GetControlStateHandler(c echo.Context) error {
	controlState, err := s.storage.GetControlState()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, controlState)
}

// controlStateUpdate uses pointers so an absent field is distinguishable
// from an explicit false.
type controlStateUpdate struct {
	PVSurplus     *bool `json:"pvSurplus"`
	NightCharging *bool `json:"nightCharging"`
	BatteryLock   *bool `json:"batteryLock"`
	GridCharging  *bool `json:"gridCharging"`
}

func (s *Server) PutControlStateHandler(c echo.Context) error {
	var update controlStateUpdate
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	// the night-charging flag belongs to the scheduler alone
	if update.NightCharging != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "nightCharging is managed by the scheduler"})
	}

	controlState, err := s.storage.GetControlState()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if update.PVSurplus != nil {
		controlState.PVSurplus = *update.PVSurplus
	}
	if update.BatteryLock != nil {
		controlState.BatteryLock = *update.BatteryLock
	}
	if update.GridCharging != nil {
		controlState.GridCharging = *update.GridCharging
	}
	if err := s.storage.SaveControlState(controlState); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	// push the battery-side toggles down to the device
	if update.BatteryLock != nil {
		s.rootContext.Send(s.masterActor, domain.SetDischargeLockRequest{Enabled: *update.BatteryLock})
	}
	if update.GridCharging != nil {
		s.rootContext.Send(s.masterActor, domain.SetGridChargeRequest{Enabled: *update.GridCharging})
	}

	return c.JSON(http.StatusOK, controlState)
}

func (s *Server) GetStrategyHandler(c echo.Context) error {
	settings, err := s.storage.GetSettings()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	strategy := settings.Strategy
	if strategy == "" {
		strategy = domain.StrategyOff
	}
	return c.JSON(http.StatusOK, echo.Map{"strategy": strategy})
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

func (s *Server) PutStrategyHandler(c echo.Context) error {
	var req strategyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	strategy, err := domain.ParseChargingStrategy(req.Strategy)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ChangeStrategyRequest{Strategy: strategy}, actorRequestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if response, ok := res.(domain.ChangeStrategyResponse); ok {
		if response.HasResponseError() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": response.GetResponseError().Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"strategy": response.Strategy})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unexpected response"})
}

func (s *Server) StartChargingHandler(c echo.Context) error {
	var req strategyRequest
	if err := c.Bind(&req); err != nil && err != echo.ErrUnsupportedMediaType {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var strategy domain.ChargingStrategy
	if req.Strategy != "" {
		parsed, err := domain.ParseChargingStrategy(req.Strategy)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		strategy = parsed
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActivateMaxPowerRequest{Strategy: strategy}, actorRequestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if response, ok := res.(domain.ActivateMaxPowerResponse); ok && response.HasResponseError() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "starting"})
}

func (s *Server) StopChargingHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.StopChargingRequest{}, actorRequestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if response, ok := res.(domain.StopChargingResponse); ok && response.HasResponseError() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "stopping"})
}

func (s *Server) GetSettingsHandler(c echo.Context) error {
	settings, err := s.storage.GetSettings()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	// the notification key stays server-side
	settings.ProwlAPIKey = ""
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) PutSettingsHandler(c echo.Context) error {
	current, err := s.storage.GetSettings()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	var update domain.Settings
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if update.Strategy != "" && !update.Strategy.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown charging strategy"})
	}
	if update.NightCharging.Enabled {
		if _, err := service.ParseClock(update.NightCharging.StartTime); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		if _, err := service.ParseClock(update.NightCharging.EndTime); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
	}

	update.ProwlAPIKey = current.ProwlAPIKey
	if err := s.storage.SaveSettings(update); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "saved"})
}
