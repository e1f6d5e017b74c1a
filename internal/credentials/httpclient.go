package credentials

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

const (
	retryWaitMin = 200 * time.Millisecond
	retryWaitMax = 2 * time.Second
)

// newHTTPClient returns the client used for token and discovery requests.
// Connection errors, 429 and 5xx responses are retried; the last response is
// handed back unchanged so OAuth error bodies can still be parsed.
func newHTTPClient(cfg *Config, logger *logging.Logger) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.HTTPRetries
	if client.RetryMax < 0 {
		client.RetryMax = 0
	}
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.HTTPClient.Timeout = cfg.HTTPTimeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = retryLogger{logger}
	return client.StandardClient()
}

// retryLogger adapts the logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	l *logging.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.l.Warning("%s%s", msg, formatFields(keysAndValues))
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.l.Debug("%s%s", msg, formatFields(keysAndValues))
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.l.Debug("%s%s", msg, formatFields(keysAndValues))
}

func (r retryLogger) Debug(string, ...interface{}) {}

func formatFields(keysAndValues []interface{}) string {
	var out string
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return out
}
