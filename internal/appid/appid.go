// Package appid resolves the application identity.
package appid

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	"github.com/volscan/volscan/internal/config"
)

// Default is the built-in identity used when no `.fulmen/app.yaml` is found.
func Default() *appidentity.Identity {
	return &appidentity.Identity{
		BinaryName:  config.AppName,
		Vendor:      config.AppName,
		EnvPrefix:   config.EnvPrefix,
		ConfigName:  config.AppName,
		Description: "Rate-limited HTTPS client for brokerage market-data APIs",
	}
}

// Get returns the identity from an explicit identity file when one is
// configured or discoverable, and the built-in identity otherwise.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	identity, err := appidentity.Get(ctx)
	if err == nil && identity != nil && identity.BinaryName != "" {
		return identity, nil
	}
	if strings.TrimSpace(os.Getenv(appidentity.EnvIdentityPath)) != "" && err != nil {
		// An explicit path that cannot be loaded is a configuration error.
		return nil, err
	}
	return Default(), nil
}
