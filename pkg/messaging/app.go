package messaging

import (
	"errors"
	"fmt"
	"os"
)

// App identifies the process that owns a Broker. It is populated by Broker.Init.
type App struct {
	Name       string
	Hostname   string
	Major      int
	Minor      int
	Patch      int
	InstanceID string

	// Version is rendered as "major.minor.patch-instance".
	Version string
	// FQN is "name-version@hostname" and is stamped as the AppID of published messages.
	FQN string
}

func newApp(name string, major, minor, patch int, instanceID string) (App, error) {
	if name == "" {
		return App{}, errors.New("invalid app name: must not be empty")
	}
	if major < 0 || minor < 0 || patch < 0 {
		return App{}, fmt.Errorf("invalid version %d.%d.%d: components must not be negative", major, minor, patch)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	version := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if instanceID != "" {
		version += "-" + instanceID
	}

	return App{
		Name:       name,
		Hostname:   host,
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		InstanceID: instanceID,
		Version:    version,
		FQN:        name + "-" + version + "@" + host,
	}, nil
}
