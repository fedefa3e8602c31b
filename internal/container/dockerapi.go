// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// pingTimeout bounds the daemon reachability check.
const pingTimeout = 2 * time.Second

type (
	// imageAPI is the slice of the Docker API client APIInspector needs.
	imageAPI interface {
		Ping(ctx context.Context) (types.Ping, error)
		ImageInspectWithRaw(ctx context.Context, imageID string) (image.InspectResponse, []byte, error)
		Close() error
	}

	// APIInspector reads image labels through the Docker Engine API.
	APIInspector struct {
		cli imageAPI
	}
)

// NewAPIInspector connects to the daemon described by DOCKER_HOST and friends,
// negotiating the API version, and pings it. The client ignores docker
// contexts, so a daemon only reachable through one fails here.
func NewAPIInspector(ctx context.Context) (*APIInspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAPIInspector(ctx, cli)
}

func newAPIInspector(ctx context.Context, cli imageAPI) (*APIInspector, error) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker daemon not reachable: %w", err)
	}
	return &APIInspector{cli: cli}, nil
}

// InspectorFor returns the inspector cache lookups should use with engine:
// the Docker API when engine is docker and the daemon answers, otherwise the
// engine's own CLI. The returned close function is never nil.
func InspectorFor(ctx context.Context, engine Engine) (ImageInspector, func() error, error) {
	return inspectorFor(ctx, engine, NewAPIInspector)
}

func inspectorFor(ctx context.Context, engine Engine, connect func(context.Context) (*APIInspector, error)) (ImageInspector, func() error, error) {
	noop := func() error { return nil }
	if engine.Name() != string(EngineTypeDocker) {
		return engine, noop, nil
	}
	api, err := connect(ctx)
	if err != nil {
		return engine, noop, err
	}
	return api, api.Close, nil
}

// ImageLabels returns the labels of img and whether it exists.
func (a *APIInspector) ImageLabels(ctx context.Context, img string) (map[string]string, bool, error) {
	resp, _, err := a.cli.ImageInspectWithRaw(ctx, img)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to inspect image %s: %w", img, err)
	}

	labels := map[string]string{}
	if resp.Config != nil {
		for k, v := range resp.Config.Labels {
			labels[k] = v
		}
	}
	return labels, true, nil
}

// Close releases the API connection.
func (a *APIInspector) Close() error {
	return a.cli.Close()
}
