package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvfs/internal/mimetype"
	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// errNotFound is returned when the back end reports no such item. Item ids
// are back-end specific: an object key for s3, a path for dropbox, a
// durable id elsewhere.
var errNotFound = errors.New("item not found")

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List the children of a folder (default: root)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	addPagingFlags(cmd)
	cmd.Flags().String("order-by", "", "server-side ordering, where the back end supports it")
	cmd.Flags().Bool("all", false, "follow page tokens until the listing is complete")

	return cmd
}

func newStatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat <id>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}

	cmd.Flags().StringSlice("fields", nil, "limit the attributes fetched, where the back end supports it")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name> [parent-id]",
		Short: "Create a folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runMkdir,
	}

	cmd.Flags().String("description", "", "folder description")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [parent-id]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}

	cmd.Flags().String("name", "", "remote name (default: local base name)")
	cmd.Flags().String("mime-type", "", "MIME type (default: derived from the name)")
	cmd.Flags().String("description", "", "file description")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id> [local-path]",
		Short: "Download a file (local-path '-' writes to stdout)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	cmd.Flags().String("export", "", "export MIME type for native office documents")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a file or folder (moves to trash where the back end has one)",
		Long: `Delete a file or folder. Folder deletion is recursive.

Items go to the back end's trash by default. Use --permanent to bypass it.
Back ends without a trash either delete permanently (dropbox) or refuse a
trash delete (s3).`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().Bool("permanent", false, "delete permanently instead of moving to trash")

	return cmd
}

func newMvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <id> <target-parent-id>",
		Short: "Move (and optionally rename) an item",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}

	cmd.Flags().String("name", "", "new name")

	return cmd
}

func newCpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp <id> <target-parent-id>",
		Short: "Copy an item",
		Args:  cobra.ExactArgs(2),
		RunE:  runCp,
	}

	cmd.Flags().String("name", "", "name of the copy")

	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search by name (and content, where the back end indexes it)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	addPagingFlags(cmd)

	return cmd
}

func addPagingFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page-size", 0, "items per page (clamped to the back end's maximum)")
	cmd.Flags().String("page-token", "", "token from a previous page")
	cmd.Flags().Bool("trashed", false, "include trashed items")
}

func listOptions(cmd *cobra.Command) storage.ListFilesOptions {
	pageSize, _ := cmd.Flags().GetInt("page-size")
	pageToken, _ := cmd.Flags().GetString("page-token")
	trashed, _ := cmd.Flags().GetBool("trashed")

	opts := storage.ListFilesOptions{
		PageSize:       pageSize,
		PageToken:      pageToken,
		IncludeTrashed: trashed,
	}

	if cmd.Flags().Lookup("order-by") != nil {
		opts.OrderBy, _ = cmd.Flags().GetString("order-by")
	}

	return opts
}

func parentArg(args []string, idx int) string {
	if len(args) > idx {
		return args[idx]
	}

	return storage.RootID
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	parentID := parentArg(args, 0)
	opts := listOptions(cmd)
	all, _ := cmd.Flags().GetBool("all")

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	cc.Logger.Debug("ls", "parent_id", parentID, "page_token", opts.PageToken, "all", all)

	result := &storage.ListFilesResult{}

	for {
		page, err := p.ListChildren(ctx, parentID, opts)
		if err != nil {
			return fmt.Errorf("listing %q: %w", parentID, err)
		}

		result.Files = append(result.Files, page.Files...)
		result.NextPageToken = page.NextPageToken

		if !all || page.NextPageToken == "" {
			break
		}

		opts.PageToken = page.NextPageToken
	}

	return printListing(cc, result)
}

func printListing(cc *CLIContext, result *storage.ListFilesResult) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, result)
	}

	if len(result.Files) == 0 {
		cc.Statusf("No items.\n")
	} else {
		printFilesTable(cc.Out, result.Files)
	}

	if result.NextPageToken != "" {
		cc.Statusf("More results: --page-token %s\n", result.NextPageToken)
	}

	return nil
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	fields, _ := cmd.Flags().GetStringSlice("fields")

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	f, err := p.GetByID(ctx, args[0], fields...)
	if err != nil {
		return fmt.Errorf("stat %q: %w", args[0], err)
	}

	if f == nil {
		return fmt.Errorf("stat %q: %w", args[0], errNotFound)
	}

	return printFile(cc, f)
}

func printFile(cc *CLIContext, f *storage.File) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, f)
	}

	printFileDetails(cc.Out, f)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	desc, _ := cmd.Flags().GetString("description")

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	f, err := p.Create(ctx, storage.FileMetadata{
		Name:        args[0],
		MimeType:    storage.FolderMimeType,
		ParentID:    parentArg(args, 1),
		Description: desc,
	}, nil)
	if err != nil {
		return fmt.Errorf("creating folder %q: %w", args[0], err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, f)
	}

	cc.Statusf("Created folder %s\n", f.Name)
	fmt.Fprintln(cc.Out, f.ID)

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	localPath := args[0]
	name, _ := cmd.Flags().GetString("name")
	mime, _ := cmd.Flags().GetString("mime-type")
	desc, _ := cmd.Flags().GetString("description")

	if name == "" {
		name = filepath.Base(localPath)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	cc.Logger.Debug("put", "local", localPath, "name", name, "size", len(data))

	f, err := p.Create(ctx, storage.FileMetadata{
		Name:        name,
		MimeType:    mimetype.OrFromName(mime, name),
		ParentID:    parentArg(args, 1),
		Description: desc,
		Size:        int64(len(data)),
	}, data)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, f)
	}

	cc.Statusf("Uploaded %s (%s)\n", f.Name, formatSize(f.Size))
	fmt.Fprintln(cc.Out, f.ID)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	export, _ := cmd.Flags().GetString("export")

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	res, err := p.Download(ctx, args[0], storage.DownloadOptions{ExportMimeType: export})
	if err != nil {
		return fmt.Errorf("downloading %q: %w", args[0], err)
	}

	if res == nil {
		return fmt.Errorf("downloading %q: %w", args[0], errNotFound)
	}

	localPath := res.Filename
	if len(args) > 1 {
		localPath = args[1]
	}

	if localPath == "-" {
		_, err := cc.Out.Write(res.Data)
		return err
	}

	if info, statErr := os.Stat(localPath); statErr == nil && info.IsDir() {
		localPath = filepath.Join(localPath, res.Filename)
	}

	if err := os.WriteFile(localPath, res.Data, 0o644); err != nil { //nolint:gosec // user-chosen download target
		return fmt.Errorf("writing %s: %w", localPath, err)
	}

	cc.Statusf("Downloaded %s (%s, %s)\n", localPath, formatSize(res.Size), res.MimeType)

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	permanent, _ := cmd.Flags().GetBool("permanent")

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	deleted, err := p.Delete(ctx, args[0], permanent)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", args[0], err)
	}

	if !deleted {
		return fmt.Errorf("deleting %q: %w", args[0], errNotFound)
	}

	if permanent {
		cc.Statusf("Deleted %s permanently\n", args[0])
	} else {
		cc.Statusf("Deleted %s\n", args[0])
	}

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	return relocate(cmd, args, "moving", storage.Provider.Move)
}

func runCp(cmd *cobra.Command, args []string) error {
	return relocate(cmd, args, "copying", storage.Provider.Copy)
}

type relocateFunc func(p storage.Provider, ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error)

// relocate runs mv or cp, which share arguments and output.
func relocate(cmd *cobra.Command, args []string, verb string, op relocateFunc) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	name, _ := cmd.Flags().GetString("name")

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	f, err := op(p, ctx, args[0], args[1], name)
	if err != nil {
		return fmt.Errorf("%s %q: %w", verb, args[0], err)
	}

	if f == nil {
		return fmt.Errorf("%s %q: %w", verb, args[0], errNotFound)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, f)
	}

	cc.Statusf("%s%s done: %s\n", strings.ToUpper(verb[:1]), verb[1:], f.Name)
	fmt.Fprintln(cc.Out, f.ID)

	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	result, err := p.Search(ctx, args[0], listOptions(cmd))
	if err != nil {
		return fmt.Errorf("searching %q: %w", args[0], err)
	}

	return printListing(cc, result)
}
