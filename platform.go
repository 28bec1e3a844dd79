package apicore

import (
	"runtime"
	"sync"
)

var (
	platformOnce    sync.Once
	platformHeaders map[string]string
)

// platformProperties reports immutable runtime fingerprint headers. Computed
// once per process.
func (c *Client) platformProperties() map[string]string {
	platformOnce.Do(func() {
		platformHeaders = map[string]string{
			"X-Client-Lang":            "go",
			"X-Client-Package-Version": Version,
			"X-Client-OS":              normalizePlatform(runtime.GOOS),
			"X-Client-Arch":            normalizeArch(runtime.GOARCH),
			"X-Client-Runtime":         "go",
			"X-Client-Runtime-Version": runtime.Version(),
		}
	})
	return platformHeaders
}

func normalizePlatform(goos string) string {
	switch goos {
	case "darwin":
		return "MacOS"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "freebsd", "openbsd", "netbsd", "dragonfly":
		return "FreeBSD"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return "Other:" + goos
	}
}

func normalizeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "x32"
	case "arm":
		return "arm"
	case "arm64":
		return "arm64"
	default:
		return "other:" + goarch
	}
}
