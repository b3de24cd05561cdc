package assistant

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/stretchr/testify/require"
)

func TestDetectCommands(t *testing.T) {
	flat := AuthCommands{Login: []string{"login"}, Logout: []string{"logout"}}
	nested := AuthCommands{Login: []string{"auth", "login"}, Logout: []string{"auth", "logout"}}

	cases := []struct {
		name string
		res  runResult
		want AuthCommands
	}{
		{"flat commands", runResult{stdout: "Commands:\n  chat     Start a chat\n  login    Login\n  logout   Logout\n"}, flat},
		{"auth subcommand", runResult{stdout: "Commands:\n  chat  Start a chat\n  auth  Manage authentication\n"}, nested},
		{"help fails", runResult{err: errors.New("exit status 2")}, flat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRunner{results: map[string]runResult{"--help": tc.res}}
			require.Equal(t, tc.want, DetectCommands(context.Background(), r, "q"))
		})
	}
}

func TestLogin(t *testing.T) {
	exitErr := errors.New("exit status 1")

	r := &fakeRunner{results: map[string]runResult{
		"--version": {stdout: "q 1.12.0"},
		"login":     {stderr: "You are already logged in", err: exitErr},
	}}
	res, err := Login(context.Background(), r, "q", nil)
	require.NoError(t, err)
	require.True(t, res.LoggedIn)
	require.Equal(t, "Already logged in! Amazon Q is available.", res.Message)
	require.Empty(t, res.Steps)

	r = &fakeRunner{results: map[string]runResult{
		"--version":   {stdout: "q 1.12.0"},
		"login":       {},
		"chat --help": {stderr: "You are not logged in", err: exitErr},
		"--help":      {stdout: "  auth  Manage authentication"},
	}}
	res, err = Login(context.Background(), r, "q", nil)
	require.NoError(t, err)
	require.False(t, res.LoggedIn)
	require.Len(t, res.Steps, 4)
	require.Equal(t, "Run: q auth login", res.Steps[1])

	_, err = Login(context.Background(), &fakeRunner{results: map[string]runResult{"--version": {err: exec.ErrNotFound}}}, "q", nil)
	require.ErrorIs(t, err, ErrCLINotFound)
}

func TestLogout(t *testing.T) {
	exitErr := errors.New("exit status 2")
	cases := []struct {
		name string
		res  runResult
		err  error
	}{
		{name: "signed out", res: runResult{stdout: "You are now logged out"}},
		{name: "old client", res: runResult{stderr: "error: unrecognized subcommand 'logout'", err: exitErr}, err: ErrLogoutUnsupported},
		{name: "not installed", res: runResult{err: exec.ErrNotFound}, err: ErrCLINotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cache := NewStatusCache(0)
			cache.Store(Status{Available: true, Message: "Available and authenticated"})
			r := &fakeRunner{results: map[string]runResult{"logout": tc.res}}

			err := Logout(context.Background(), r, "q", cache)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			_, ok := cache.Get()
			require.False(t, ok)
		})
	}

	var cliErr *CLIError
	err := Logout(context.Background(), &fakeRunner{results: map[string]runResult{"logout": {stderr: "network down", err: exitErr}}}, "q", nil)
	require.ErrorAs(t, err, &cliErr)
	require.Equal(t, "Amazon Q error: network down", UserMessage(err))
}

func TestService_LoginLogout(t *testing.T) {
	r := &fakeRunner{results: map[string]runResult{
		"--version": {stdout: "q 1.12.0"},
		"login":     {stdout: "already logged in"},
		"logout":    {},
	}}
	svc := NewService(NewQCLI("q", r), config.Default().Assistant, WithRunner(r))

	res, err := svc.Login(context.Background())
	require.NoError(t, err)
	require.True(t, res.LoggedIn)
	require.True(t, svc.Status(context.Background()).Cached)

	require.NoError(t, svc.Logout(context.Background()))
	require.False(t, svc.Status(context.Background()).Cached)

	hosted := NewService(&fakeProvider{replies: []string{"x"}}, config.Default().Assistant)
	_, err = hosted.Login(context.Background())
	require.ErrorIs(t, err, ErrNoCLIAccount)
	require.ErrorIs(t, hosted.Logout(context.Background()), ErrNoCLIAccount)
}
