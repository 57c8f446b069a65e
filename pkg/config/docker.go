package config

import (
	"os"
	"sync"
)

// DockerHostGateway is the name Docker Desktop resolves to the host machine.
const DockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites loopback hosts to the Docker host gateway when
// the engine itself runs in a container, so a local PostgreSQL or Redis on
// the developer machine stays reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return DockerHostGateway
	}
	return host
}

// Addr returns host:port for the Redis client, applying the Docker rewrite.
func (c *RedisConfig) Addr() string {
	return joinHostPort(ResolveHostForDocker(c.Host), c.Port)
}
