package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/metrics"
)

// TokenFunc returns the bearer token to send with each request. It is
// consulted per request so a re-authenticated session takes effect
// without rebuilding the client.
type TokenFunc func() string

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout     time.Duration
	MaxFailures int
	Cooldown    time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client is a thin HTTP client for the notification REST API. It handles
// Bearer authentication, the {success, data} envelope and JSON
// (de)serialization. It never retries: a failed call is reported once.
// Consecutive transport or 5xx failures open a circuit breaker so that
// callers fail fast while the backend is down.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
	tracer     trace.Tracer
	log        *zap.Logger
}

// NewClient creates a new API client rooted at baseURL
// (e.g. https://crm.example.com/api).
func NewClient(baseURL string, token TokenFunc, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if token == nil {
		token = func() string { return "" }
	}
	log := logger.OrNop(opts.Logger)

	maxFailures := uint32(opts.MaxFailures)
	cb := gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "notification-api",
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		breaker:    cb,
		tracer:     otel.Tracer("github.com/nhle/crm-notify/internal/gateway"),
		log:        log,
	}
}

// tripsBreaker reports whether err says the backend is unhealthy, as
// opposed to rejecting a particular request.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) {
		return true
	}
	var srvErr *ServerError
	return errors.As(err, &srvErr) && srvErr.Status >= 500
}

// Get performs a GET and decodes the envelope's data into result.
func (c *Client) Get(
	ctx context.Context,
	op string,
	path string,
	query url.Values,
	result interface{},
) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, op, http.MethodGet, path, nil, result)
}

// Post performs a POST with a JSON body and decodes the envelope's data
// into result when result is non-nil.
func (c *Client) Post(
	ctx context.Context,
	op string,
	path string,
	body interface{},
	result interface{},
) error {
	return c.do(ctx, op, http.MethodPost, path, body, result)
}

// do issues exactly one HTTP request and maps the outcome onto
// NetworkError / ServerError.
func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	body interface{},
	result interface{},
) (err error) {
	ctx, span := c.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		switch {
		case IsNetworkError(err):
			outcome = "network_error"
		case IsServerError(err):
			outcome = "server_error"
		case err != nil:
			outcome = "error"
		}
		metrics.GatewayRequestsTotal.WithLabelValues(op, outcome).Inc()
		metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	res, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, op, method, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &NetworkError{Op: op, Err: err}
		}
		return err
	}

	if res.status == http.StatusNoContent {
		return nil
	}

	// Every other 2xx must carry the envelope.
	var env envelope
	if err := json.Unmarshal(res.body, &env); err != nil {
		return &ServerError{Op: op, Status: res.status, Message: "malformed response: " + err.Error()}
	}
	if !env.Success {
		return &ServerError{Op: op, Status: res.status, Message: envelopeMessage(env)}
	}

	if result == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return &ServerError{Op: op, Status: res.status, Message: "malformed " + op + " data: " + err.Error()}
	}
	return nil
}

// rawResponse is a 2xx reply as read off the wire.
type rawResponse struct {
	status int
	body   []byte
}

// roundTrip sends the request and returns the raw body of a 2xx response.
func (c *Client) roundTrip(
	ctx context.Context,
	op string,
	method string,
	path string,
	payload []byte,
) (*rawResponse, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	c.log.Debug("api call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		var env envelope
		if json.Unmarshal(respBody, &env) == nil {
			if m := envelopeMessage(env); m != "" {
				msg = m
			}
		}
		return nil, &ServerError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	return &rawResponse{status: resp.StatusCode, body: respBody}, nil
}

func envelopeMessage(env envelope) string {
	if env.Message != "" {
		return env.Message
	}
	if env.Error != "" {
		return env.Error
	}
	return "request was not successful"
}
