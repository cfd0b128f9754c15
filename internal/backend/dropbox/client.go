package dropbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/sharing"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"
)

// FilesClient is the subset of files.Client used by the adapter.
// files.Client from the SDK satisfies it; tests use an in-memory tree.
type FilesClient interface {
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	UploadSessionStart(arg *files.UploadSessionStartArg, content io.Reader) (*files.UploadSessionStartResult, error)
	UploadSessionAppendV2(arg *files.UploadSessionAppendArg, content io.Reader) error
	UploadSessionFinish(arg *files.UploadSessionFinishArg, content io.Reader) (*files.FileMetadata, error)
	CreateFolderV2(arg *files.CreateFolderArg) (*files.CreateFolderResult, error)
	CopyV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error)
	SearchV2(arg *files.SearchV2Arg) (*files.SearchV2Result, error)
	SearchContinueV2(arg *files.SearchV2ContinueArg) (*files.SearchV2Result, error)
}

// SharingClient is the subset of sharing.Client used for links.
type SharingClient interface {
	CreateSharedLinkWithSettings(arg *sharing.CreateSharedLinkWithSettingsArg) (sharing.IsSharedLinkMetadata, error)
	ListSharedLinks(arg *sharing.ListSharedLinksArg) (*sharing.ListSharedLinksResult, error)
}

// UsersClient is the subset of users.Client used for space usage.
type UsersClient interface {
	GetSpaceUsage() (*users.SpaceUsage, error)
}

// clients groups the SDK clients bound to one token.
type clients struct {
	files   FilesClient
	sharing SharingClient
	users   UsersClient
}

// clientFactory builds clients for a token. SetAccessToken calls it again.
type clientFactory func(token string) clients

// sdkFactory returns a factory producing real SDK clients. SDK request
// logging is routed into logger at debug level when that level is enabled.
func sdkFactory(httpClient *http.Client, logger *slog.Logger) clientFactory {
	return func(token string) clients {
		cfg := dropbox.Config{
			Token:    token,
			LogLevel: dropbox.LogOff,
			Client:   httpClient,
		}

		if logger.Enabled(context.Background(), slog.LevelDebug) {
			cfg.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
			cfg.LogLevel = dropbox.LogInfo
		}

		return clients{
			files:   files.New(cfg),
			sharing: sharing.New(cfg),
			users:   users.New(cfg),
		}
	}
}

// isNotFound reports whether err is a Dropbox lookup failure. Endpoints
// nest the lookup under different tags (path, path_lookup, from_lookup),
// so the typed checks are backed by the error summary.
func isNotFound(err error) bool {
	var getErr files.GetMetadataAPIError
	if errors.As(err, &getErr) && getErr.EndpointError != nil && getErr.EndpointError.Path != nil {
		return getErr.EndpointError.Path.Tag == files.LookupErrorNotFound
	}

	var dlErr files.DownloadAPIError
	if errors.As(err, &dlErr) && dlErr.EndpointError != nil && dlErr.EndpointError.Path != nil {
		return dlErr.EndpointError.Path.Tag == files.LookupErrorNotFound
	}

	return strings.Contains(err.Error(), "not_found")
}

// isLinkExists reports whether a shared link already exists for the path.
func isLinkExists(err error) bool {
	return strings.Contains(err.Error(), "shared_link_already_exists")
}
