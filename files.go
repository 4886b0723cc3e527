package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hive/pkg/hive"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().BoolP("parents", "p", false, "create missing parent folders, no error if the folder exists")

	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Move or rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source> <destination>",
		Short: "Copy a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runCp,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder. Folder deletion is recursive and all contents
are deleted. Use --recursive (-r) to confirm intent when deleting folders.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a file",
		Long: `Upload a local file. The remote file is replaced only once the whole
upload has succeeded; an interrupted upload leaves it untouched.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}

	cmd.Flags().BoolP("no-clobber", "n", false, "fail if the remote file already exists")
	cmd.Flags().BoolP("append", "a", false, "append to the remote file instead of replacing it")
	cmd.MarkFlagsMutuallyExclusive("no-clobber", "append")

	return cmd
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}
}

// remotePath turns a user-supplied path into an absolute drive path.
// Both "docs/a" and "/docs/a/" mean "/docs/a".
func remotePath(p string) string {
	return path.Clean("/" + strings.Trim(p, "/"))
}

// fileJSON is the JSON output schema for one item in ls and stat output.
type fileJSON struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	ModifiedAt string `json:"modified_at,omitempty"`
	ID         string `json:"id,omitempty"`
}

func toFileJSON(fi *hive.FileInfo) fileJSON {
	out := fileJSON{
		Name:     fi.Name,
		Path:     fi.Path,
		Size:     fi.Size,
		IsFolder: fi.IsDir,
		ID:       fi.ID,
	}

	if !fi.ModTime.IsZero() {
		out.ModifiedAt = fi.ModTime.UTC().Format(time.RFC3339)
	}

	return out
}

func runLs(cmd *cobra.Command, args []string) error {
	target := "/"
	if len(args) > 0 {
		target = remotePath(args[0])
	}

	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	cc.Logger.Debug("ls", slog.String("path", target))

	var items []*hive.FileInfo

	if _, err := session.Drive.List(ctx, target, func(fi *hive.FileInfo) bool {
		items = append(items, fi)
		return true
	}); err != nil {
		return fmt.Errorf("listing %q: %w", target, err)
	}

	// Folders first, then alphabetical.
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}

		return items[i].Name < items[j].Name
	})

	if cc.Flags.JSON {
		out := make([]fileJSON, 0, len(items))
		for _, fi := range items {
			out = append(out, toFileJSON(fi))
		}

		return printJSON(cc.Out, out)
	}

	rows := make([][]string, 0, len(items))

	for _, fi := range items {
		name, size := fi.Name, formatSize(fi.Size)
		if fi.IsDir {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(fi.ModTime)})
	}

	printTable(cc.Out, []string{"NAME", "SIZE", "MODIFIED"}, rows)

	return nil
}

func runStat(cmd *cobra.Command, args []string) error {
	target := remotePath(args[0])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	fi, err := session.Drive.Stat(ctx, target)
	if err != nil {
		return fmt.Errorf("stat %q: %w", target, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toFileJSON(fi))
	}

	kind := "file"
	if fi.IsDir {
		kind = "folder"
	}

	fmt.Fprintf(cc.Out, "Name:     %s\n", fi.Name)
	fmt.Fprintf(cc.Out, "Path:     %s\n", fi.Path)
	fmt.Fprintf(cc.Out, "Type:     %s\n", kind)
	fmt.Fprintf(cc.Out, "Size:     %s (%d bytes)\n", formatSize(fi.Size), fi.Size)
	fmt.Fprintf(cc.Out, "Modified: %s\n", formatTime(fi.ModTime))

	if fi.ID != "" {
		fmt.Fprintf(cc.Out, "ID:       %s\n", fi.ID)
	}

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	target := remotePath(args[0])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	parents, err := cmd.Flags().GetBool("parents")
	if err != nil {
		return err
	}

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	if !parents {
		if err := session.Drive.Mkdir(ctx, target); err != nil {
			return fmt.Errorf("creating %q: %w", target, err)
		}

		cc.Statusf("Created %s\n", target)

		return nil
	}

	// Walk down from the root, creating each missing segment.
	current := "/"

	for _, part := range strings.Split(strings.Trim(target, "/"), "/") {
		if part == "" {
			continue
		}

		current = path.Join(current, part)

		err := session.Drive.Mkdir(ctx, current)
		if err != nil && !errors.Is(err, hive.ErrAlreadyExists) {
			return fmt.Errorf("creating %q: %w", current, err)
		}
	}

	cc.Statusf("Created %s\n", target)

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	src, dst := remotePath(args[0]), remotePath(args[1])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Drive.Move(ctx, src, dst); err != nil {
		return fmt.Errorf("moving %q to %q: %w", src, dst, err)
	}

	cc.Statusf("Moved %s -> %s\n", src, dst)

	return nil
}

func runCp(cmd *cobra.Command, args []string) error {
	src, dst := remotePath(args[0]), remotePath(args[1])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Drive.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copying %q to %q: %w", src, dst, err)
	}

	cc.Statusf("Copied %s -> %s\n", src, dst)

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	target := remotePath(args[0])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	fi, err := session.Drive.Stat(ctx, target)
	if err != nil {
		return fmt.Errorf("stat %q: %w", target, err)
	}

	if fi.IsDir && !recursive {
		return fmt.Errorf("%q is a folder, use -r to delete it and its contents", target)
	}

	if err := session.Drive.Delete(ctx, target); err != nil {
		return fmt.Errorf("deleting %q: %w", target, err)
	}

	cc.Statusf("Deleted %s\n", target)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	src := remotePath(args[0])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	localPath := path.Base(src)
	if len(args) > 1 {
		localPath = args[1]
	}

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	f, err := session.Drive.OpenFile(ctx, src, hive.FlagReadOnly)
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer f.Close()

	// Download next to the target and rename, so a failed transfer never
	// leaves a truncated file under the final name.
	partialPath := localPath + ".partial"

	out, err := os.Create(partialPath)
	if err != nil {
		return fmt.Errorf("creating partial file for download: %w", err)
	}

	n, err := io.Copy(out, f)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("downloading %q: %w", src, err)
	}

	if err := os.Rename(partialPath, localPath); err != nil {
		os.Remove(partialPath)
		return fmt.Errorf("renaming download to %q: %w", localPath, err)
	}

	cc.Logger.Debug("download complete", slog.String("local_path", localPath), slog.Int64("bytes", n))
	cc.Statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	noClobber, err := cmd.Flags().GetBool("no-clobber")
	if err != nil {
		return err
	}

	appendMode, err := cmd.Flags().GetBool("append")
	if err != nil {
		return err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if st.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	dst := "/" + filepath.Base(localPath)
	if len(args) > 1 {
		dst = remotePath(args[1])
	}

	flags := hive.FlagWriteOnly | hive.FlagCreate

	switch {
	case noClobber:
		flags |= hive.FlagExclusive
	case appendMode:
		flags |= hive.FlagAppend
	default:
		flags |= hive.FlagTruncate
	}

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	cc.Logger.Debug("put", slog.String("local_path", localPath), slog.String("remote_path", dst),
		slog.Int64("size", st.Size()), slog.String("flags", flags.String()))

	f, err := session.Drive.OpenFile(ctx, dst, flags)
	if err != nil {
		return fmt.Errorf("opening %q: %w", dst, err)
	}

	if _, err := io.Copy(f, in); err != nil {
		return errors.Join(fmt.Errorf("writing %q: %w", dst, err), f.Discard(ctx), f.Close())
	}

	if err := f.Commit(ctx); err != nil {
		return errors.Join(fmt.Errorf("uploading %q: %w", dst, err), f.Discard(ctx), f.Close())
	}

	if err := f.Close(); err != nil {
		return err
	}

	cc.Statusf("Uploaded %s (%s)\n", dst, formatSize(st.Size()))

	return nil
}

func runCat(cmd *cobra.Command, args []string) error {
	src := remotePath(args[0])
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	session, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}
	defer session.Close()

	f, err := session.Drive.OpenFile(ctx, src, hive.FlagReadOnly)
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer f.Close()

	if _, err := io.Copy(cc.Out, f); err != nil {
		return fmt.Errorf("reading %q: %w", src, err)
	}

	return nil
}
