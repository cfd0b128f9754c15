package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvfs/internal/config"
	"github.com/tonimelisma/cloudvfs/internal/tokenfile"
)

// Token state constants for account listing.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
	tokenStateInline  = "config"
	tokenStateEnv     = "env"
)

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts and their token status",
		Long: `Display every [account.<name>] section of the config file with its kind
and where its token comes from. Reads local files only.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runAccounts,
	}
}

// accountStatus is one row of the accounts listing.
type accountStatus struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Default    bool   `json:"default"`
	TokenState string `json:"token_state"`
	TokenPath  string `json:"token_path,omitempty"`
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	env := config.ReadEnvOverrides()
	cfgPath := config.ResolvePath(env, config.CLIOverrides{ConfigPath: cc.Flags.ConfigPath})

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(cfg.Accounts) == 0 {
		cc.Statusf("No accounts configured. Add an [account.<name>] section to %s.\n", cfgPath)
		return nil
	}

	accounts := buildAccountStatuses(cfg, env, time.Now(), cc.Logger)

	if cc.Flags.JSON {
		return printJSON(cc.Out, accounts)
	}

	rows := make([][]string, 0, len(accounts))

	for _, a := range accounts {
		name := a.Name
		if a.Default {
			name += " *"
		}

		rows = append(rows, []string{name, a.Kind, a.TokenState})
	}

	printTable(cc.Out, []string{"ACCOUNT", "KIND", "TOKEN"}, rows)

	return nil
}

// buildAccountStatuses reports, per account, where its token would come
// from and whether a saved token is still usable at now.
func buildAccountStatuses(cfg *config.Config, env config.EnvOverrides, now time.Time, logger *slog.Logger) []accountStatus {
	active, err := cfg.SelectAccount(env.Account)
	if err != nil {
		active = ""
	}

	out := make([]accountStatus, 0, len(cfg.Accounts))

	for _, name := range cfg.AccountNames() {
		acct := cfg.Accounts[name]
		ra := &config.ResolvedAccount{Name: name, Account: acct}

		status := accountStatus{
			Name:    name,
			Kind:    acct.Kind,
			Default: name == cfg.DefaultAccount || (cfg.DefaultAccount == "" && name == active),
		}

		switch {
		case env.AccessToken != "" && name == active:
			status.TokenState = tokenStateEnv
		case acct.AccessToken != "":
			status.TokenState = tokenStateInline
		default:
			status.TokenPath = ra.TokenPath()
			status.TokenState = checkTokenState(status.TokenPath, now, logger)
		}

		out = append(out, status)
	}

	return out
}

// checkTokenState determines whether a saved token file is usable.
// Returns "valid", "expired", or "missing".
func checkTokenState(path string, now time.Time, logger *slog.Logger) string {
	_, err := tokenfile.AccessToken(path, now)

	switch {
	case err == nil:
		return tokenStateValid
	case errors.Is(err, tokenfile.ErrNoToken):
		return tokenStateMissing
	case errors.Is(err, tokenfile.ErrExpired):
		return tokenStateExpired
	default:
		logger.Debug("could not read token file", "path", path, "error", err)
		return tokenStateMissing
	}
}
