package cli

import (
	"context"
	"errors"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/mfme-labs/kapsel/internal/adapters/driven/cloud/gdrive"
	"github.com/mfme-labs/kapsel/internal/adapters/driven/config/file"
	"github.com/mfme-labs/kapsel/internal/adapters/driven/storage/fsblob"
	"github.com/mfme-labs/kapsel/internal/adapters/driven/storage/sqlite"
	"github.com/mfme-labs/kapsel/internal/adapters/driven/telemetry/ndjson"
	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
	"github.com/mfme-labs/kapsel/internal/core/services"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// Wired services, built once per invocation by bootstrap.
var (
	configStore *file.ConfigStore
	tokenStore  *file.TokenStore
	store       *sqlite.Store
	payloads    *fsblob.Store
	ledger      *services.TelemetryLedger
	syncEngine  *services.CloudSyncEngine
	uploadQueue *services.UploadQueue
	pipeline    *services.IngestionPipeline
	cloudReady  bool
)

// bootstrap builds the full service graph from configuration and flags.
// A missing cloud account is not an error here: sync operations then
// report error_no_account instead.
func bootstrap(ctx context.Context) error {
	var err error

	configStore, err = file.NewConfigStore(flagConfigDir)
	if err != nil {
		return err
	}
	tokenStore, err = file.NewTokenStore(flagConfigDir)
	if err != nil {
		return err
	}
	cfg := configStore.Config()

	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	store, err = sqlite.NewStore(dataDir)
	if err != nil {
		return err
	}

	payloadDir := ""
	telemetryDir := ""
	if dataDir != "" {
		payloadDir = filepath.Join(dataDir, "envelopes")
		telemetryDir = filepath.Join(dataDir, "telemetry")
	}
	payloads, err = fsblob.NewStore(payloadDir)
	if err != nil {
		return err
	}
	sink, err := ndjson.NewSink(telemetryDir)
	if err != nil {
		return err
	}

	ledger = services.NewTelemetryLedger(store.TelemetryStore(), sink)

	var cloud driven.CloudStore
	if ts, tsErr := tokenStore.TokenSource(ctx, oauthConfig(cfg)); tsErr == nil {
		cloud, err = gdrive.NewStore(ctx, ts)
		if err != nil {
			return err
		}
		cloudReady = true
	} else if !errors.Is(tsErr, domain.ErrNoAccount) {
		return tsErr
	} else {
		logger.Debug("no cloud account configured; sync disabled")
	}

	syncEngine = services.NewCloudSyncEngine(
		store.EnvelopeStore(),
		store.CloudBindingStore(),
		payloads,
		cloud,
		ledger,
		cfg.Upload.RemoteRoot,
	)
	uploadQueue = services.NewUploadQueue(syncEngine, cfg.BackoffBase(0))
	pipeline = services.NewIngestionPipeline(
		store.EnvelopeStore(),
		payloads,
		ledger,
		uploadQueue,
		cfg.MaxPayloadBytes,
	)

	return nil
}

// teardown releases the resources bootstrap opened.
func teardown() error {
	if store != nil {
		return store.Close()
	}
	return nil
}

// oauthConfig builds the Drive OAuth client from configuration. The
// drive.file scope restricts access to files this application created.
func oauthConfig(cfg file.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
}
