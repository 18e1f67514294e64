package config

import (
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveServiceURL rewrites a loopback host to host.docker.internal when
// running in Docker, so a sidecar OCR service on the host stays reachable.
// Unparseable URLs are returned unchanged.
func ResolveServiceURL(raw string) string {
	if raw == "" || !IsRunningInDocker() {
		return raw
	}
	return rewriteLoopback(raw)
}

func rewriteLoopback(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = "host.docker.internal:" + port
	} else {
		u.Host = "host.docker.internal"
	}
	return u.String()
}
