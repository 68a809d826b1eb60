package detector

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	// HealthPath is the endpoint the server exposes for readiness.
	HealthPath = "/global/health"
	// DefaultTimeout bounds a single probe request.
	DefaultTimeout = 2 * time.Second
)

// HTTPDetector reports alive when a GET to URL answers with a 2xx status.
type HTTPDetector struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewHealthDetector probes http://host:port/global/health.
func NewHealthDetector(host string, port int) HTTPDetector {
	return HTTPDetector{
		URL:     "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + HealthPath,
		Timeout: DefaultTimeout,
	}
}

func (d HTTPDetector) Alive(ctx context.Context) (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return false, err
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}
	return true, nil
}

func (d HTTPDetector) Describe() string { return fmt.Sprintf("http:%s", d.URL) }
