// SPDX-License-Identifier: MPL-2.0

package entry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

type (
	// Probe reports whether the background service is ready. A non-nil
	// error means "not yet"; the sequencer polls until the budget runs out.
	Probe interface {
		Ready(ctx context.Context) error
		String() string
	}

	// TCPProbe is ready once Addr accepts a connection.
	TCPProbe struct {
		Addr    string
		Timeout time.Duration
	}

	// HTTPProbe is ready once URL answers with a 2xx status. Redirects are
	// followed by the client.
	HTTPProbe struct {
		URL    string
		Client *http.Client
	}

	// DelayProbe waits Delay once and then reports ready.
	DelayProbe struct {
		Delay time.Duration
	}

	// ProbeFunc adapts a function to Probe.
	ProbeFunc func(ctx context.Context) error
)

// Ready dials Addr.
func (p TCPProbe) Ready(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p TCPProbe) String() string { return "tcp " + p.Addr }

// Ready issues a GET to URL.
func (p HTTPProbe) Ready(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() // Body unused; close error non-critical
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s answered %s", p.URL, resp.Status)
	}
	return nil
}

func (p HTTPProbe) String() string { return "http " + p.URL }

// Ready sleeps Delay, returning early if ctx ends.
func (p DelayProbe) Ready(ctx context.Context) error {
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p DelayProbe) String() string { return "delay " + p.Delay.String() }

// Ready calls f.
func (f ProbeFunc) Ready(ctx context.Context) error { return f(ctx) }

func (f ProbeFunc) String() string { return "func" }
