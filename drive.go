package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "Display drive identity and quota",
		Args:  cobra.NoArgs,
		RunE:  runDrive,
	}
}

// driveOutput is the JSON schema for `drive --json`. Quota fields are -1
// when the backend does not report them.
type driveOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DriveType  string `json:"drive_type"`
	QuotaUsed  int64  `json:"quota_used"`
	QuotaTotal int64  `json:"quota_total"`
	RootHash   string `json:"root_hash,omitempty"`
}

func runDrive(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	info, err := session.Drive.Info(ctx)
	if err != nil {
		return fmt.Errorf("fetching drive info: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, driveOutput{
			ID:         info.ID,
			Name:       info.Name,
			DriveType:  info.DriveType,
			QuotaUsed:  info.QuotaUsed,
			QuotaTotal: info.QuotaTotal,
			RootHash:   info.RootHash,
		})
	}

	fmt.Fprintf(cc.Out, "Drive: %s (%s)\n", info.Name, info.DriveType)
	fmt.Fprintf(cc.Out, "  ID:    %s\n", info.ID)
	fmt.Fprintf(cc.Out, "  Quota: %s / %s\n", formatSize(info.QuotaUsed), formatSize(info.QuotaTotal))

	if info.RootHash != "" {
		fmt.Fprintf(cc.Out, "  Root:  %s\n", info.RootHash)
	}

	return nil
}
