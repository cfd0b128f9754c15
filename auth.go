package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvfs/internal/config"
	"github.com/tonimelisma/cloudvfs/internal/tokenfile"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage saved access tokens",
	}

	cmd.AddCommand(newTokenSetCmd())
	cmd.AddCommand(newTokenClearCmd())

	return cmd
}

func newTokenSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [token]",
		Short: "Save an access token for the account (reads stdin when omitted)",
		Long: `Save a bearer token obtained elsewhere to the account's token file.
Tokens are obtained and refreshed outside cloudvfs; this command only stores
the current one. For s3 accounts the token is ACCESS_KEY:SECRET_KEY.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.MaximumNArgs(1),
		RunE:        runTokenSet,
	}

	cmd.Flags().Duration("expires-in", 0, "token lifetime, e.g. 1h (0 means no expiry)")

	return cmd
}

func newTokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "clear",
		Short:       "Remove the account's saved token",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runTokenClear,
	}
}

// accountForToken resolves the account without requiring a token, since
// these commands exist to provide one.
func accountForToken(cc *CLIContext) (*config.ResolvedAccount, error) {
	env := config.ReadEnvOverrides()
	env.AccessToken = ""

	resolved, err := config.Resolve(env, config.CLIOverrides{
		ConfigPath: cc.Flags.ConfigPath,
		Account:    cc.Flags.Account,
	})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	expiresIn, _ := cmd.Flags().GetDuration("expires-in")

	ra, err := accountForToken(cc)
	if err != nil {
		return err
	}

	token, err := readTokenArg(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var expiry time.Time
	if expiresIn > 0 {
		expiry = time.Now().Add(expiresIn)
	}

	path := ra.TokenPath()

	meta := map[string]string{
		tokenfile.MetaKind:    ra.Kind,
		tokenfile.MetaSavedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := tokenfile.Rotate(path, token, expiry, meta); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	cc.Logger.Info("token saved", "account", ra.Name, "path", path)
	cc.Statusf("Token saved for account %q.\n", ra.Name)

	return nil
}

func readTokenArg(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading token from stdin: %w", err)
	}

	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no token given")
	}

	return token, nil
}

func runTokenClear(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ra, err := accountForToken(cc)
	if err != nil {
		return err
	}

	removed, err := tokenfile.Remove(ra.TokenPath())
	if err != nil {
		return err
	}

	if !removed {
		cc.Statusf("No saved token for account %q.\n", ra.Name)
		return nil
	}

	cc.Statusf("Token removed for account %q.\n", ra.Name)

	return nil
}
