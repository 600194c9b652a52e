package delivery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shohag/webhookd/internal/config"
	"github.com/shohag/webhookd/internal/urlguard"
)

const (
	defaultMaxResponseBody = 1024
	defaultTimeout         = 10 * time.Second
)

// Request is one outbound webhook POST.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

type SendResult struct {
	StatusCode   int
	ResponseBody string
	LatencyMs    int64
	Error        string
}

// Sender performs a single HTTP attempt. It never returns an error; failures
// are reported in SendResult.Error.
type Sender interface {
	Send(ctx context.Context, req *Request) *SendResult
}

type HTTPSender struct {
	client  *resty.Client
	maxBody int64
}

func NewSender(cfg config.DeliveryConfig) *HTTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxResponseBody
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBody
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if cfg.GuardDial {
		dialer.Control = urlguard.DialControl
	}
	transport := &http.Transport{
		// no proxy: the dial guard has to see the real destination
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: time.Second,
	}

	// the client is shared by every workspace, so no cookie jar
	client := resty.New().
		SetCookieJar(nil).
		SetTransport(transport).
		SetTimeout(timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))

	return &HTTPSender{client: client, maxBody: int64(maxBody)}
}

func (s *HTTPSender) Send(ctx context.Context, req *Request) *SendResult {
	start := time.Now()

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetBody(req.Body).
		SetDoNotParseResponse(true).
		Post(req.URL)
	if err != nil {
		return &SendResult{
			Error:     fmt.Sprintf("request failed: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	raw := resp.RawBody()
	defer raw.Close()
	body, _ := io.ReadAll(io.LimitReader(raw, s.maxBody))

	return &SendResult{
		StatusCode:   resp.StatusCode(),
		ResponseBody: strings.ToValidUTF8(string(body), ""),
		LatencyMs:    time.Since(start).Milliseconds(),
	}
}

var _ Sender = (*HTTPSender)(nil)
