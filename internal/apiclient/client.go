// Package apiclient is the typed client for the clinic REST API. Every
// resource is a thin wrapper translating one method call into one HTTP
// request/response pair.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-portal/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
)

const maxErrorBody = 64 << 10

// Credentials supplies the bearer token and is told when the upstream
// rejects it. A portal session implements this.
type Credentials interface {
	Token() string
	HandleUnauthorized()
}

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	GenerateTimeout time.Duration
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
	Breaker         *circuitbreaker.CircuitBreaker
}

// Client talks to the clinic API. A Client bound to credentials is obtained
// with For; the zero-credential Client can only reach public endpoints.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	timeout         time.Duration
	generateTimeout time.Duration
	downloadTimeout time.Duration
	creds           Credentials
	log             *logger.Logger
	metrics         *metrics.Metrics
	breaker         *circuitbreaker.CircuitBreaker

	Auth           *AuthClient
	Doctors        *DoctorsClient
	Services       *ServicesClient
	Patients       *PatientsClient
	Appointments   *AppointmentsClient
	Availability   *AvailabilityClient
	Schedules      *SchedulesClient
	Exceptions     *ExceptionsClient
	Consultations  *ConsultationsClient
	MedicalHistory *MedicalHistoryClient
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("apiclient: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("apiclient: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Deadlines come from the per-request context so that the long
		// generation and download calls can exceed the default.
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 2 * time.Minute
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		baseURL:         base,
		httpClient:      httpClient,
		timeout:         cfg.Timeout,
		generateTimeout: cfg.GenerateTimeout,
		downloadTimeout: cfg.DownloadTimeout,
		log:             log,
		metrics:         cfg.Metrics,
		breaker:         cfg.Breaker,
	}
	c.bindResources()
	return c, nil
}

// For returns a copy of c that authenticates with creds.
func (c *Client) For(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	cp.bindResources()
	return &cp
}

func (c *Client) bindResources() {
	c.Auth = &AuthClient{c: c}
	c.Doctors = &DoctorsClient{c: c}
	c.Services = &ServicesClient{c: c}
	c.Patients = &PatientsClient{c: c}
	c.Appointments = &AppointmentsClient{c: c}
	c.Availability = &AvailabilityClient{c: c}
	c.Schedules = &SchedulesClient{c: c}
	c.Exceptions = &ExceptionsClient{c: c}
	c.Consultations = &ConsultationsClient{c: c}
	c.MedicalHistory = &MedicalHistoryClient{c: c}
}

// IsBreakerFailure is the circuit breaker predicate for upstream calls:
// only transport errors and 5xx answers count.
func IsBreakerFailure(err error) bool {
	appErr, ok := apperrors.As(err)
	if !ok {
		return true
	}
	return appErr.Code == apperrors.ErrRemote && appErr.Status >= http.StatusInternalServerError
}

type requestOptions struct {
	timeout      time.Duration
	headers      http.Header
	query        url.Values
	skipAuthHook bool
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set(key, value)
	}
}

func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) { o.query = q }
}

// withoutAuthHook is used by login: a 401 there is a wrong password, not an
// expired session.
func withoutAuthHook() RequestOption {
	return func(o *requestOptions) { o.skipAuthHook = true }
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, opts ...RequestOption) error {
	resp, err := c.send(ctx, method, path, in, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return apperrors.Internal(fmt.Errorf("failed to decode %s %s response: %w", method, path, err))
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in interface{}, opts ...RequestOption) (*response, error) {
	o := requestOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	var resp *response
	call := func() error {
		var err error
		resp, err = c.roundTrip(ctx, method, path, in, o)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if err == circuitbreaker.ErrOpen {
			err = apperrors.Unavailable(err)
		}
	} else {
		err = call()
	}
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrUnauthorized) && !o.skipAuthHook && c.creds != nil {
			c.log.WithContext(ctx).Warn("clinic api rejected credentials", "path", path)
			if c.metrics != nil {
				c.metrics.Unauthorized.Inc()
			}
			c.creds.HandleUnauthorized()
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in interface{}, o requestOptions) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(o.query) > 0 {
		u += "?" + o.query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("failed to encode request body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if rid, ok := ctx.Value(logger.RequestIDKey{}).(string); ok && rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	for k, vs := range o.headers {
		req.Header[k] = vs
	}

	resource := resourceOf(path)
	start := time.Now()
	res, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.UpstreamLatency.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.observe(resource, method, "error")
		c.log.WithContext(ctx).Error(err, "clinic api request failed", "method", method, "path", path)
		return nil, apperrors.Unavailable(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer res.Body.Close()
	c.observe(resource, method, strconv.Itoa(res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		appErr := apperrors.Remote(res.StatusCode, snippet)
		c.log.WithContext(ctx).Debug("clinic api returned error",
			"method", method, "path", path, "status", res.StatusCode, "message", appErr.Message)
		return nil, appErr
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Unavailable(fmt.Errorf("failed to read %s %s response: %w", method, path, err))
	}
	return &response{status: res.StatusCode, header: res.Header, body: data}, nil
}

func (c *Client) observe(resource, method, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequests.WithLabelValues(resource, method, status).Inc()
}

// resourceOf keeps metric labels bounded: "/appointments/42/confirm" is
// reported as "appointments".
func resourceOf(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}

func escape(id string) string {
	return url.PathEscape(id)
}
