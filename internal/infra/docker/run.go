package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

type RunOptions struct {
	Image   string
	Cmd     []string
	Env     []string
	WorkDir string
	// Archives are tar streams extracted into the container before it starts, keyed by
	// destination directory. Unlike bind mounts they work when the CLI itself runs in a container.
	Archives   map[string]io.Reader
	StreamLogs bool
}

// Run runs a container to completion and returns its stdout.
// The container is always removed afterwards.
func (c *Client) Run(ctx context.Context, opts RunOptions) (string, error) {
	config := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Cmd,
		Env:        opts.Env,
		WorkingDir: opts.WorkDir,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, &container.HostConfig{}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	containerID := resp.ID
	defer func() {
		if err := c.cli.ContainerRemove(context.WithoutCancel(ctx), containerID, container.RemoveOptions{Force: true}); err != nil {
			c.logger.With("container_id", containerID).With("err", err.Error()).Warn("failed to remove container")
		}
	}()

	for dst, content := range opts.Archives {
		if err := c.cli.CopyToContainer(ctx, containerID, dst, content, container.CopyToContainerOptions{}); err != nil {
			return "", fmt.Errorf("failed to copy files to '%s': %w", dst, err)
		}
	}

	attachResp, err := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach to container: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		var errWriter io.Writer = &stderr
		if opts.StreamLogs {
			errWriter = io.MultiWriter(os.Stderr, &stderr)
		}
		_, _ = stdcopy.StdCopy(&stdout, errWriter, attachResp.Reader)
	}()

	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("error waiting for container: %w", err)
		}
	case status := <-statusCh:
		<-copied
		if status.StatusCode != 0 {
			if stderr.Len() > 0 {
				return "", fmt.Errorf("container exited with code %d: %s", status.StatusCode, stderr.String())
			}
			return "", fmt.Errorf("container exited with code %d", status.StatusCode)
		}
	}

	return stdout.String(), nil
}
