// Package browser provides Chrome detection, launch, and target management.
package browser

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
)

// ErrChromeNotFound is returned when no Chrome binary can be located.
var ErrChromeNotFound = errors.New("chrome not found")

// chromePaths returns the list of paths to search for Chrome on the current platform.
func chromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	default:
		return nil
	}
}

// channelPaths returns extra candidate paths specific to a non-stable
// release channel, searched before the general chromePaths() list.
func channelPaths(channel Channel) []string {
	switch channel {
	case ChannelCanary:
		switch runtime.GOOS {
		case "darwin":
			return []string{"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary"}
		case "linux":
			return []string{"google-chrome-canary"}
		}
	case ChannelBeta:
		switch runtime.GOOS {
		case "darwin":
			return []string{"/Applications/Google Chrome Beta.app/Contents/MacOS/Google Chrome Beta"}
		case "linux":
			return []string{"google-chrome-beta"}
		}
	case ChannelDev:
		switch runtime.GOOS {
		case "darwin":
			return []string{"/Applications/Google Chrome Dev.app/Contents/MacOS/Google Chrome Dev"}
		case "linux":
			return []string{"google-chrome-unstable"}
		}
	}
	return nil
}

// FindChrome searches for a stable-channel Chrome or Chromium binary.
// It first checks the BIDID_CHROME environment variable, then searches
// common installation paths for the current platform.
// Returns the path to the executable or ErrChromeNotFound.
func FindChrome() (string, error) {
	return FindChromeChannel(ChannelStable)
}

// FindChromeChannel searches for a Chrome binary for the given release
// channel. An empty channel is treated as ChannelStable. It first checks
// the BIDID_CHROME environment variable, then searches channel-specific
// paths, then the general platform paths.
// Returns the path to the executable or ErrChromeNotFound.
func FindChromeChannel(channel Channel) (string, error) {
	// Check environment variable first
	if envPath := os.Getenv("BIDID_CHROME"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		// Env var set but path invalid - still return error with context
		return "", ErrChromeNotFound
	}

	for _, path := range channelPaths(channel) {
		if found, err := exec.LookPath(path); err == nil {
			return found, nil
		}
	}

	// Search common paths
	for _, path := range chromePaths() {
		found, err := exec.LookPath(path)
		if err == nil {
			return found, nil
		}
	}

	return "", ErrChromeNotFound
}
