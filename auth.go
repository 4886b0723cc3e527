package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hive/pkg/hive"
)

// errInteractiveLogin is returned by passwordOnlyAuth when the backend
// wants a browser or device-code sign-in.
var errInteractiveLogin = errors.New("interactive sign-in required")

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the configured backend",
		Long: `Authenticate with the configured backend and save the credentials.

OneDrive prints a device code (or an authorization URL with flow = "browser").
ownCloud prompts for the password unless the config file provides one.
Saved credentials are reused silently by every other command.`,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		RunE:  runWhoami,
	}
}

// interactiveAuth answers every AuthRequest: URLs and codes are printed to
// stderr, credentials are read as one line from the command's input.
func interactiveAuth(cmd *cobra.Command, cc *CLIContext) hive.AuthHandler {
	stderr := cmd.ErrOrStderr()
	in := bufio.NewReader(cc.In)

	return func(_ context.Context, req *hive.AuthRequest) (string, error) {
		// Sign-in prompts must always be visible, even with --quiet.
		switch {
		case req.UserCode != "":
			fmt.Fprintf(stderr, "To sign in, visit: %s\n", req.URL)
			fmt.Fprintf(stderr, "Enter code: %s\n", req.UserCode)

			return "", nil
		case req.Backend == hive.BackendOneDrive:
			fmt.Fprintf(stderr, "%s\n%s\n", req.Message, req.URL)

			return "", nil
		}

		fmt.Fprintf(stderr, "%s: ", req.Message)

		return readSecret(in)
	}
}

// passwordOnlyAuth answers credential prompts but refuses sign-in flows.
// OneDrive gets no handler at all, so it fails before contacting the
// identity service when no token is saved.
func passwordOnlyAuth(cc *CLIContext) hive.AuthHandler {
	if cc.Cfg.Backend == hive.BackendOneDrive.String() {
		return nil
	}

	in := bufio.NewReader(cc.In)

	return func(_ context.Context, req *hive.AuthRequest) (string, error) {
		if req.UserCode != "" || req.Backend == hive.BackendOneDrive {
			return "", errInteractiveLogin
		}

		return readSecret(in)
	}
}

func readSecret(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading credential: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, err := newClient(ctx, cc)
	if err != nil {
		return err
	}
	defer client.Close()

	cc.Logger.Info("login started", slog.String("backend", cc.Cfg.Backend))

	if err := client.Login(ctx, interactiveAuth(cmd, cc)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	info, err := client.Info(ctx)
	if err != nil {
		return err
	}

	cc.Statusf("Logged in to %s as %s.\n", cc.Cfg.Backend, displayName(info))

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	// Logging in first loads the saved session so the driver can revoke it.
	client, err := newClient(ctx, cc)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx, passwordOnlyAuth(cc)); err != nil {
		cc.Logger.Debug("no session to resume", slog.String("error", err.Error()))
		cc.Statusf("Not logged in.\n")

		return nil
	}

	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	cc.Logger.Info("logout successful", slog.String("backend", cc.Cfg.Backend))
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Backend     string `json:"backend"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, err := loginClient(ctx, cc)
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Info(ctx)
	if err != nil {
		return fmt.Errorf("fetching account info: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, whoamiOutput{
			Backend:     cc.Cfg.Backend,
			UserID:      info.UserID,
			DisplayName: info.DisplayName,
			Email:       info.Email,
			Endpoint:    info.Endpoint,
		})
	}

	fmt.Fprintf(cc.Out, "Backend:  %s\n", cc.Cfg.Backend)
	fmt.Fprintf(cc.Out, "User:     %s\n", displayName(info))
	fmt.Fprintf(cc.Out, "ID:       %s\n", info.UserID)

	if info.Endpoint != "" {
		fmt.Fprintf(cc.Out, "Endpoint: %s\n", info.Endpoint)
	}

	return nil
}

func displayName(info *hive.ClientInfo) string {
	name := info.DisplayName
	if name == "" {
		name = info.UserID
	}

	if info.Email != "" {
		name += " (" + info.Email + ")"
	}

	return name
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
