// Package storage selects the artifact storage provider from environment
// configuration. Both the API and the bulk worker construct their provider
// here so the two processes always agree on where artifacts live.
package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"certmill/internal/adapters/storage/gdrive"
	"certmill/internal/adapters/storage/localfs"
)

// NewProvider builds the provider named by STORAGE_PROVIDER (localfs or
// gdrive), defaulting to the local filesystem.
func NewProvider() (Provider, error) {
	provider := os.Getenv("STORAGE_PROVIDER")
	if provider == "" {
		provider = "localfs"
	}

	switch provider {
	case "localfs":
		return localfs.New(mustEnv("STORAGE_LOCAL_ROOT")), nil
	case "gdrive":
		return newGDriveProvider()
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", provider)
	}
}

// newGDriveProvider authenticates against Drive with an OAuth refresh token
// (minted once with cmd/gdrive-auth) and uploads into GDRIVE_FOLDER_ID.
func newGDriveProvider() (Provider, error) {
	ctx := context.Background()

	conf := &oauth2.Config{
		ClientID:     mustEnv("GDRIVE_CLIENT_ID"),
		ClientSecret: mustEnv("GDRIVE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	tok := &oauth2.Token{RefreshToken: mustEnv("GDRIVE_REFRESH_TOKEN")}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	if err != nil {
		return nil, err
	}
	return gdrive.NewClient(srv, os.Getenv("GDRIVE_FOLDER_ID")), nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
