// Package resolver turns a configured account into a storage.Provider.
// Callers receive only the interface and never branch on the back end.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/cloudvfs/internal/backend/box"
	"github.com/tonimelisma/cloudvfs/internal/backend/dropbox"
	"github.com/tonimelisma/cloudvfs/internal/backend/gdrive"
	"github.com/tonimelisma/cloudvfs/internal/backend/objstore"
	"github.com/tonimelisma/cloudvfs/internal/backend/onedrive"
	"github.com/tonimelisma/cloudvfs/internal/config"
	"github.com/tonimelisma/cloudvfs/internal/storage"
	"github.com/tonimelisma/cloudvfs/internal/tokenfile"
)

// Options carries the settings shared by every adapter.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	// ChunkSize applies to chunked upload sessions. Zero keeps each
	// adapter's default.
	ChunkSize int64
	Logger    *slog.Logger
}

// Open returns the adapter for acct.Kind bound to acct.AccessToken.
// An unknown kind fails with storage.ErrInvalidArgument.
func Open(ctx context.Context, acct config.Account, opts Options) (storage.Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if acct.AccessToken == "" {
		return nil, storage.InvalidArgumentf("resolver: account of kind %q has no access token", acct.Kind)
	}

	logger.Debug("opening provider",
		slog.String("kind", acct.Kind),
		slog.Int64("chunk_size", opts.ChunkSize),
	)

	switch acct.Kind {
	case config.KindS3:
		return objstore.New(acct.AccessToken, objstore.Options{
			Bucket:       acct.Bucket,
			Region:       acct.Region,
			Endpoint:     acct.Endpoint,
			UsePathStyle: acct.PathStyle,
			HTTPClient:   opts.HTTPClient,
			Logger:       logger,
		})
	case config.KindDropbox:
		return dropbox.New(acct.AccessToken, dropbox.Options{
			HTTPClient: opts.HTTPClient,
			ChunkSize:  opts.ChunkSize,
			Logger:     logger,
		})
	case config.KindBox:
		return box.New(acct.AccessToken, box.Options{
			ClientID:     acct.ClientID,
			ClientSecret: acct.ClientSecret,
			BaseURL:      acct.BaseURL,
			HTTPClient:   opts.HTTPClient,
			Logger:       logger,
		})
	case config.KindGDrive:
		return gdrive.New(ctx, acct.AccessToken, gdrive.Options{
			BaseURL:              acct.BaseURL,
			HTTPClient:           opts.HTTPClient,
			ForceResumableUpload: acct.ForceResumableUpload,
			UserAgent:            opts.UserAgent,
			Logger:               logger,
		})
	case config.KindOneDrive:
		return onedrive.New(acct.AccessToken, onedrive.Options{
			BaseURL:    acct.BaseURL,
			HTTPClient: opts.HTTPClient,
			DriveID:    acct.DriveID,
			ChunkSize:  opts.ChunkSize,
			UserAgent:  opts.UserAgent,
			Logger:     logger,
		})
	default:
		return nil, storage.InvalidArgumentf("resolver: unknown account kind %q", acct.Kind)
	}
}

// OpenResolved opens a fully resolved account. The token comes from the
// account (config file or environment) or else from its saved token file.
func OpenResolved(ctx context.Context, ra *config.ResolvedAccount, logger *slog.Logger) (storage.Provider, error) {
	acct := ra.Account

	if acct.AccessToken == "" {
		tok, err := tokenfile.AccessToken(ra.TokenPath(), time.Now())
		if err != nil {
			if errors.Is(err, tokenfile.ErrNoToken) {
				return nil, fmt.Errorf("account %q has no access token: set access_token, %s, or save one with 'cloudvfs token set': %w",
					ra.Name, config.EnvAccessToken, err)
			}

			return nil, err
		}

		acct.AccessToken = tok
	}

	return Open(ctx, acct, Options{
		HTTPClient: NewHTTPClient(ra.ConnectTimeout, ra.DataTimeout),
		UserAgent:  ra.UserAgent,
		ChunkSize:  ra.ChunkSize,
		Logger:     logger,
	})
}

// NewHTTPClient returns a client that bounds connection setup and the wait
// for response headers. Bodies are not bounded, so large transfers are
// limited only by the caller's context.
func NewHTTPClient(connectTimeout, dataTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = dataTimeout

	return &http.Client{Transport: transport}
}
