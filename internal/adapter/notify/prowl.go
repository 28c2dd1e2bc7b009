package notify

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"chargepilot/internal/core/port"

	"go.uber.org/zap"
)

const (
	prowlAddURL     = "https://api.prowlapp.com/publicapi/add"
	applicationName = "chargepilot"
	requestTimeout  = 10 * time.Second
)

// ProwlNotifier delivers push notifications through the Prowl public API.
// TriggerEvent returns before the HTTP round-trip happens; a failed
// delivery is logged and dropped, never surfaced to the caller.
type ProwlNotifier struct {
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func NewProwlNotifier(apiKey string, logger *zap.Logger) *ProwlNotifier {
	return &ProwlNotifier{
		apiKey: apiKey,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger.With(zap.String("component", "prowl")),
	}
}

func (n *ProwlNotifier) TriggerEvent(eventKey string, message string) {
	go n.deliver(eventKey, message)
}

func (n *ProwlNotifier) deliver(eventKey string, message string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notification delivery panicked", zap.Any("reason", r))
		}
	}()

	form := url.Values{}
	form.Set("apikey", n.apiKey)
	form.Set("application", applicationName)
	form.Set("event", eventKey)
	form.Set("description", message)

	resp, err := n.client.Post(prowlAddURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		n.logger.Error("notification delivery failed", zap.String("event", eventKey), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		n.logger.Error("notification rejected", zap.String("event", eventKey), zap.Int("status", resp.StatusCode))
		return
	}
	n.logger.Debug("notification delivered", zap.String("event", eventKey))
}

var _ port.Notifier = (*ProwlNotifier)(nil)
