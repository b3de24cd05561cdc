package assistant

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
)

// AuthCommands are the q arguments for the account operations. Clients that
// list an auth subcommand in their help nest login and logout under it.
type AuthCommands struct {
	Login  []string `json:"login"`
	Logout []string `json:"logout"`
}

// LoginResult tells the user whether they are signed in and, if not, how to
// sign in. q login opens a browser, so it is never run unattended.
type LoginResult struct {
	LoggedIn bool     `json:"logged_in"`
	Message  string   `json:"message"`
	Steps    []string `json:"steps,omitempty"`
}

// DetectCommands reads q --help. Any failure falls back to the flat layout.
func DetectCommands(ctx context.Context, runner Runner, binary string) AuthCommands {
	flat := AuthCommands{Login: []string{"login"}, Logout: []string{"logout"}}
	stdout, _, err := runWithTimeout(ctx, runner, config.DefaultStatusProbeTimeout, binary, "--help")
	if err != nil {
		return flat
	}
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		if f := strings.Fields(sc.Text()); len(f) > 0 && strings.EqualFold(f[0], "auth") {
			return AuthCommands{Login: []string{"auth", "login"}, Logout: []string{"auth", "logout"}}
		}
	}
	return flat
}

// Login reports the sign-in state of the q CLI. When the CLI is installed but
// unusable it returns the manual sign-in steps.
func Login(ctx context.Context, runner Runner, binary string, cache *StatusCache) (LoginResult, error) {
	runner, binary = qDefaults(runner, binary)
	if _, _, err := runWithTimeout(ctx, runner, config.DefaultStatusProbeTimeout, binary, "--version"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return LoginResult{}, ErrTimeout
		}
		return LoginResult{}, ErrCLINotFound
	}
	if st := CheckStatus(ctx, runner, binary, cache); st.Available {
		return LoginResult{LoggedIn: true, Message: "Already logged in! Amazon Q is available."}, nil
	}
	cmd := append([]string{binary}, DetectCommands(ctx, runner, binary).Login...)
	return LoginResult{
		Message: "Please login manually.",
		Steps: []string{
			"Open your terminal",
			"Run: " + strings.Join(cmd, " "),
			"Complete browser authentication",
			"Refresh the assistant status when done",
		},
	}, nil
}

// Logout signs the q CLI out and drops the cached status either way.
func Logout(ctx context.Context, runner Runner, binary string, cache *StatusCache) error {
	runner, binary = qDefaults(runner, binary)
	if cache != nil {
		defer cache.Clear()
	}
	args := DetectCommands(ctx, runner, binary).Logout
	stdout, stderr, err := runWithTimeout(ctx, runner, config.DefaultLogoutTimeout, binary, args...)
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(stderr+stdout), "unrecognized subcommand") {
		return ErrLogoutUnsupported
	}
	if strings.TrimSpace(stderr) == "" {
		stderr = stdout
	}
	return mapCLIError(ctx, err, stderr)
}

func qDefaults(runner Runner, binary string) (Runner, string) {
	if runner == nil {
		runner = ExecRunner{}
	}
	if binary == "" {
		binary = config.DefaultQCLIBinary
	}
	return runner, binary
}
