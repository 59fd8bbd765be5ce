package transcription

import (
	"time"

	"github.com/kbukum/medscribe/httpclient"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/resilience"
)

// NewHTTPClient builds the outbound client shared by HTTP providers: per-call
// timeout, optional retry of transient failures and a circuit breaker that
// logs state changes.
func NewHTTPClient(name string, cfg Config, auth *httpclient.AuthConfig, log *logger.Logger) (*httpclient.Client, error) {
	hc := httpclient.Config{
		Name:    name,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Auth:    auth,
	}
	if cfg.MaxAttempts > 1 {
		retry := httpclient.DefaultRetryConfig()
		retry.MaxAttempts = cfg.MaxAttempts
		retry.InitialBackoff = 250 * time.Millisecond
		retry.MaxBackoff = 2 * time.Second
		retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			log.Warn("Retrying transcription request", map[string]interface{}{
				logger.FieldProvider: name,
				"attempt":            attempt,
				logger.FieldError:    err.Error(),
				"backoff_ms":         backoff.Milliseconds(),
			})
		}
		hc.Retry = retry
	}

	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.MaxFailures = cfg.BreakerFailures
	cb.Timeout = cfg.BreakerTimeout
	cb.OnStateChange = func(n string, from, to resilience.State) {
		log.Warn("Transcription circuit breaker state changed", map[string]interface{}{
			logger.FieldProvider: n,
			"from":               from.String(),
			"to":                 to.String(),
		})
	}
	hc.CircuitBreaker = &cb

	return httpclient.New(hc)
}
