package messaging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewApp(t *testing.T) {
	t.Parallel()

	app, err := newApp("algol", 1, 2, 3, "7")
	require.NoError(t, err)
	require.Equal(t, "1.2.3-7", app.Version)
	require.NotEmpty(t, app.Hostname)
	require.Equal(t, "algol-1.2.3-7@"+app.Hostname, app.FQN)

	app, err = newApp("algol", 0, 1, 0, "")
	require.NoError(t, err)
	require.Equal(t, "0.1.0", app.Version)
	require.True(t, strings.HasPrefix(app.FQN, "algol-0.1.0@"))
}

func TestNewApp_Validation(t *testing.T) {
	t.Parallel()

	_, err := newApp("", 1, 0, 0, "")
	require.ErrorContains(t, err, "invalid app name")

	_, err = newApp("algol", 1, -1, 0, "")
	require.ErrorContains(t, err, "invalid version")
}
