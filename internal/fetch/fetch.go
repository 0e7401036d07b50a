// Package fetch is the HTTP client used to retrieve report bulletins from
// the USDA Market News API and the occasional fixed-URL binary endpoint.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/usda-monitor/pollengine/internal/config"
	"github.com/usda-monitor/pollengine/internal/perr"
)

// Fetcher retrieves the raw body of one endpoint URL.
type Fetcher struct {
	client *req.Client
}

// New builds a Fetcher from cfg: ConnectTimeoutSeconds bounds the dial,
// ReadTimeoutSeconds bounds each whole request, PoolTimeoutSeconds is the
// idle-connection timeout, and MaxConns/MaxKeepaliveConns cap per-host
// connections. WriteTimeoutSeconds is not applied.
func New(cfg config.FetchConfig) *Fetcher {
	client := req.C().
		SetTimeout(time.Duration(cfg.ReadTimeoutSeconds) * time.Second).
		SetCommonRetryCount(0).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeoutSeconds) * time.Second)

	client.Transport.MaxConnsPerHost = cfg.MaxConns
	client.Transport.MaxIdleConnsPerHost = cfg.MaxKeepaliveConns
	client.Transport.IdleConnTimeout = time.Duration(cfg.PoolTimeoutSeconds) * time.Second

	return &Fetcher{client: client}
}

// Result is a successful fetch: the raw body plus the content type reported
// by the server, used by the parser dispatch to pick a decoder.
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Get issues a GET against url and returns the raw body. Any transport
// error, timeout, or non-2xx status is wrapped as a *perr.FetchError.
func (f *Fetcher) Get(ctx context.Context, url string) (*Result, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, application/pdf, */*").
		Get(url)
	if err != nil {
		return nil, &perr.FetchError{Endpoint: url, Err: err}
	}
	if !resp.IsSuccessState() {
		return nil, &perr.FetchError{
			Endpoint: url,
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return &Result{
		Body:        resp.Bytes(),
		ContentType: resp.GetContentType(),
		StatusCode:  resp.StatusCode,
	}, nil
}
