package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/hive/pkg/hive"
	"github.com/tonimelisma/hive/pkg/hive/backends"
	"github.com/tonimelisma/hive/pkg/hive/onedrive"
)

// DriveSession holds a logged-in client and its open drive for one
// command. Close releases both.
type DriveSession struct {
	Client *hive.Client
	Drive  *hive.Drive
}

// newClient builds an unauthenticated client for the configured backend.
func newClient(ctx context.Context, cc *CLIContext) (*hive.Client, error) {
	opts, err := cc.Cfg.Options(cc.Logger)
	if err != nil {
		return nil, err
	}

	return backends.Registry().NewClient(ctx, opts)
}

// loginClient builds a client and logs in, reusing saved credentials. Only
// password prompts are answered here; flows that need a browser or device
// code are left to "hive login".
func loginClient(ctx context.Context, cc *CLIContext) (*hive.Client, error) {
	client, err := newClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := client.Login(ctx, passwordOnlyAuth(cc)); err != nil {
		client.Close()

		if errors.Is(err, errInteractiveLogin) || errors.Is(err, onedrive.ErrLoginRequired) {
			return nil, fmt.Errorf("not logged in, run 'hive login' first")
		}

		return nil, fmt.Errorf("logging in to %s: %w", cc.Cfg.Backend, err)
	}

	return client, nil
}

// NewDriveSession logs in and opens the drive.
func NewDriveSession(ctx context.Context, cc *CLIContext) (*DriveSession, error) {
	client, err := loginClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	drive, err := client.OpenDrive(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening drive: %w", err)
	}

	cc.Logger.Debug("drive open", slog.String("backend", cc.Cfg.Backend))

	return &DriveSession{Client: client, Drive: drive}, nil
}

func (s *DriveSession) Close() error {
	return errors.Join(s.Drive.Close(), s.Client.Close())
}
