package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage quota and trash usage for the account",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}
}

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Create or fetch a shareable link",
		Long: `Print a link anyone can open. With --write the link also grants edit
access, on back ends that offer one. Nothing is printed when the back end
has no link for the requested permission.`,
		Args: cobra.ExactArgs(1),
		RunE: runLink,
	}

	cmd.Flags().Bool("write", false, "request an editable link")

	return cmd
}

func runInfo(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	info, err := p.DriveInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading drive info: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, info)
	}

	if info == nil {
		cc.Statusf("Account %q (%s) does not report storage usage.\n", cc.Resolved.Name, cc.Resolved.Kind)
		return nil
	}

	fmt.Fprintf(cc.Out, "Account: %s [%s]\n", cc.Resolved.Name, cc.Resolved.Kind)

	if info.TotalSpace > 0 {
		fmt.Fprintf(cc.Out, "  Used:  %s of %s\n", formatSize(info.UsedSpace), formatSize(info.TotalSpace))
	} else {
		fmt.Fprintf(cc.Out, "  Used:  %s\n", formatSize(info.UsedSpace))
	}

	fmt.Fprintf(cc.Out, "  Trash: %s in %d items\n", formatSize(info.TrashSize), info.TrashItems)

	if info.FileCount > 0 {
		fmt.Fprintf(cc.Out, "  Files: %d\n", info.FileCount)
	}

	return nil
}

func runLink(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)
	write, _ := cmd.Flags().GetBool("write")

	perm := storage.PermissionRead
	if write {
		perm = storage.PermissionWrite
	}

	p, err := cc.Provider(ctx)
	if err != nil {
		return err
	}

	link, err := p.ShareableLink(ctx, args[0], perm)
	if err != nil {
		return fmt.Errorf("sharing %q: %w", args[0], err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, map[string]string{"id": args[0], "permission": string(perm), "link": link})
	}

	if link == "" {
		cc.Statusf("No %s link available for %s.\n", perm, args[0])
		return nil
	}

	fmt.Fprintln(cc.Out, link)

	return nil
}
