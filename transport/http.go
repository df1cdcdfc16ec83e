package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/utility"
	"github.com/jpillora/backoff"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const maxErrorBodySize = 4096

// HTTP is a Transport speaking to a SharePoint site and the graph endpoint
// over HTTP. It retries throttled and unavailable responses with backoff.
type HTTP struct {
	siteURL      string
	graphRoot    string
	userAgent    string
	timeout      time.Duration
	maxAttempts  int
	timeoutStart time.Duration
	timeoutMax   time.Duration

	pooled     *http.Client
	httpClient *http.Client
	tokens     map[apimodels.APIType]oauth2.TokenSource
	limiter    *rate.Limiter
	metrics    *Metrics
	log        grip.Journaler

	mutex sync.RWMutex
}

// NewHTTP returns a transport for the site described by the settings. Use the
// setters to configure authentication and logging.
func NewHTTP(settings *spmodel.Settings) *HTTP {
	t := &HTTP{
		siteURL:      strings.TrimRight(settings.SiteURL, "/"),
		graphRoot:    strings.TrimRight(settings.GraphRoot(), "/"),
		userAgent:    settings.HTTP.UserAgent,
		timeout:      time.Duration(settings.HTTP.TimeoutSecs) * time.Second,
		maxAttempts:  settings.HTTP.MaxAttempts,
		timeoutStart: time.Duration(settings.HTTP.MinRetryDelayMS) * time.Millisecond,
		timeoutMax:   time.Duration(settings.HTTP.MaxRetryDelayMS) * time.Millisecond,
		tokens:       map[apimodels.APIType]oauth2.TokenSource{},
		log:          logging.MakeGrip(grip.GetSender()),
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = 1
	}
	if settings.HTTP.RequestsPerSecond > 0 {
		burst := settings.HTTP.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(settings.HTTP.RequestsPerSecond), burst)
	}

	t.resetClient()
	return t
}

func (t *HTTP) resetClient() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.pooled != nil {
		utility.PutHTTPClient(t.pooled)
	}
	t.pooled = utility.GetHTTPClient()
	t.httpClient = tracedClient(t.pooled, t.timeout)
}

// tracedClient wraps the pooled client's transport so each round trip is a
// child span of the caller's context. The pooled client itself is left as is
// for its return to the pool.
func tracedClient(pooled *http.Client, timeout time.Duration) *http.Client {
	base := pooled.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport:     otelhttp.NewTransport(base),
		CheckRedirect: pooled.CheckRedirect,
		Jar:           pooled.Jar,
		Timeout:       timeout,
	}
}

// Close releases the pooled HTTP client.
func (t *HTTP) Close() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.pooled != nil {
		utility.PutHTTPClient(t.pooled)
		t.pooled = nil
		t.httpClient = nil
	}
}

// SetTokenSource sets the source of bearer tokens for one protocol.
func (t *HTTP) SetTokenSource(apiType apimodels.APIType, ts oauth2.TokenSource) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.tokens[apiType] = oauth2.ReuseTokenSource(nil, ts)
}

// SetMetrics sets the collectors request telemetry is recorded in.
func (t *HTTP) SetMetrics(m *Metrics) { t.metrics = m }

// SetLogger sets the logger used for retry diagnostics.
func (t *HTTP) SetLogger(log grip.Journaler) { t.log = log }

// SetMaxAttempts sets the number of attempts a request will be made.
func (t *HTTP) SetMaxAttempts(attempts int) {
	if attempts < 1 {
		attempts = 1
	}
	t.maxAttempts = attempts
}

// SetTimeoutStart sets the initial delay between attempts.
func (t *HTTP) SetTimeoutStart(timeoutStart time.Duration) { t.timeoutStart = timeoutStart }

// SetTimeoutMax sets the maximum delay between attempts.
func (t *HTTP) SetTimeoutMax(timeoutMax time.Duration) { t.timeoutMax = timeoutMax }

func (t *HTTP) getPath(path string, apiType apimodels.APIType) string {
	path = strings.TrimPrefix(path, "/")
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	if apiType == apimodels.Graph {
		return fmt.Sprintf("%s/%s", t.graphRoot, path)
	}
	return fmt.Sprintf("%s/%s", t.siteURL, path)
}

func (t *HTTP) getBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    t.timeoutStart,
		Max:    t.timeoutMax,
		Factor: 2,
		Jitter: true,
	}
}

func (t *HTTP) newRequest(ctx context.Context, req *apimodels.Request) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, req.Method, t.getPath(req.Path, req.Type), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	if req.Body != nil {
		r.Body = io.NopCloser(bytes.NewReader(req.Body))
		r.ContentLength = int64(len(req.Body))
		r.Header.Add(spmodel.ContentLengthHeader, strconv.Itoa(len(req.Body)))
	}
	for name, val := range req.Headers {
		r.Header.Set(name, val)
	}
	if t.userAgent != "" {
		r.Header.Set(spmodel.UserAgentHeader, t.userAgent)
	}

	t.mutex.RLock()
	ts := t.tokens[req.Type]
	t.mutex.RUnlock()
	if ts != nil {
		tok, err := ts.Token()
		if err != nil {
			return nil, errors.Wrapf(err, "getting %s access token", req.Type)
		}
		tok.SetAuthHeader(r)
	}

	return r, nil
}

func (t *HTTP) doRequest(r *http.Request) (*http.Response, error) {
	var (
		response *http.Response
		err      error
	)

	func() {
		t.mutex.RLock()
		defer t.mutex.RUnlock()
		response, err = t.httpClient.Do(r)
	}()

	if err != nil {
		t.resetClient()
		return nil, errors.WithStack(err)
	}
	if response == nil {
		return nil, errors.New("received nil response")
	}

	return response, nil
}

// Send sends the request, retrying on network failures, throttling (429) and
// unavailable (502, 503, 504) responses.
func (t *HTTP) Send(ctx context.Context, req *apimodels.Request) (*apimodels.Response, error) {
	url := t.getPath(req.Path, req.Type)
	started := time.Now()
	status := 0
	defer func() { t.metrics.observeRequest(req.Type, req.Method, status, started) }()

	var lastErr error
	timer := time.NewTimer(0)
	defer timer.Stop()
	backoff := t.getBackoff()
	for i := 1; i <= t.maxAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, &spmodel.TransportError{Method: req.Method, URL: url, Err: ctx.Err()}
		case <-timer.C:
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, &spmodel.TransportError{Method: req.Method, URL: url, Err: err}
			}
		}

		r, err := t.newRequest(ctx, req)
		if err != nil {
			return nil, &spmodel.TransportError{Method: req.Method, URL: url, Err: err}
		}

		resp, err := t.doRequest(r)
		wait := backoff.Duration()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &spmodel.TransportError{Method: req.Method, URL: url, Err: ctx.Err()}
			}
			lastErr = &spmodel.TransportError{Method: req.Method, URL: url, Err: err}
			t.log.Warning(message.WrapError(err, message.Fields{
				"message":   "error sending request",
				"api_type":  req.Type,
				"method":    req.Method,
				"url":       url,
				"attempt":   i,
				"max":       t.maxAttempts,
				"wait_secs": wait.Seconds(),
			}))
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			status = resp.StatusCode
			return readResponse(resp, req.Method, url)
		case isRetryable(resp.StatusCode):
			status = resp.StatusCode
			lastErr = responseError(resp, req.Method, url)
			if after, ok := retryAfter(resp.Header.Get(spmodel.RetryAfterHeader)); ok {
				wait = after
			}
			t.log.Warning(message.Fields{
				"message":   "retryable response from server",
				"api_type":  req.Type,
				"method":    req.Method,
				"url":       url,
				"status":    resp.StatusCode,
				"attempt":   i,
				"max":       t.maxAttempts,
				"wait_secs": wait.Seconds(),
			})
		default:
			status = resp.StatusCode
			return nil, responseError(resp, req.Method, url)
		}

		if i < t.maxAttempts {
			t.metrics.observeRetry(req.Type)
			t.log.Debugf("resetting timer for attempt %d to %s", i+1, wait.String())
			timer.Reset(wait)
		}
	}

	return nil, errors.Wrapf(lastErr, "failed to make request after %d attempts", t.maxAttempts)
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func retryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func readResponse(resp *http.Response, method, url string) (*apimodels.Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &spmodel.TransportError{Method: method, URL: url, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "reading response body")}
	}

	return &apimodels.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

func responseError(resp *http.Response, method, url string) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &spmodel.TransportError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// SendBatch sends the requests as one SharePoint REST multipart batch or one
// graph JSON batch.
func (t *HTTP) SendBatch(ctx context.Context, apiType apimodels.APIType, reqs []*apimodels.Request) ([]apimodels.BatchResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	for _, req := range reqs {
		if req.Type != apiType {
			return nil, errors.Errorf("cannot send %s request in a %s batch", req.Type, apiType)
		}
	}
	t.metrics.observeBatch(apiType, len(reqs))

	var codec batchCodec
	switch apiType {
	case apimodels.SPORest:
		codec = newRESTBatch(t.siteURL)
	case apimodels.Graph:
		codec = newGraphBatch()
	default:
		return nil, errors.Errorf("invalid API type '%s'", apiType)
	}

	batchReq, err := codec.encode(reqs)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s batch", apiType)
	}

	resp, err := t.Send(ctx, batchReq)
	if err != nil {
		return nil, err
	}

	results, err := codec.decode(resp, reqs)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s batch response", apiType)
	}
	for i := range results {
		if results[i].Err != nil {
			continue
		}
		if code := results[i].Response.StatusCode; code < 200 || code >= 300 {
			results[i] = apimodels.BatchResult{Err: &spmodel.TransportError{
				Method:     reqs[i].Method,
				URL:        t.getPath(reqs[i].Path, apiType),
				StatusCode: code,
				Body:       strings.TrimSpace(string(results[i].Response.Body)),
			}}
		}
	}

	return results, nil
}

type batchCodec interface {
	encode([]*apimodels.Request) (*apimodels.Request, error)
	decode(*apimodels.Response, []*apimodels.Request) ([]apimodels.BatchResult, error)
}
