// Package browser opens help pages in the user's default browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// command returns the launcher for goos. Only http and https links are
// handed to the OS.
func command(goos, link string) (string, []string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", nil, fmt.Errorf("browser: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil, fmt.Errorf("browser: refusing %q link", u.Scheme)
	}
	switch goos {
	case "darwin":
		return "open", []string{link}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{link}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", link}, nil
	}
	return "", nil, fmt.Errorf("browser: unsupported OS %s", goos)
}

// Open opens link without waiting for the browser to exit.
func Open(link string) error {
	name, args, err := command(runtime.GOOS, link)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}
