package gdrive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

const folderMIME = "application/vnd.google-apps.folder"

// Drive allows 10 requests/sec/user; stay under it.
const (
	requestsPerSecond = 8
	burstSize         = 10
)

// Store is the Drive-backed remote object store.
type Store struct {
	svc     *drive.Service
	limiter *rate.Limiter
}

var _ driven.CloudStore = (*Store)(nil)

// NewStore creates a Drive store using the provided token source.
func NewStore(ctx context.Context, ts oauth2.TokenSource) (*Store, error) {
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &Store{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
	}, nil
}

// EnsureFolder walks the path segment by segment, looking each folder up
// by name under its parent and creating it only when missing. Repeated
// calls with the same path resolve to the same folder.
func (s *Store) EnsureFolder(ctx context.Context, pathSegments []string) (domain.FolderRef, error) {
	parent := "root"
	for _, segment := range pathSegments {
		id, err := s.findFolder(ctx, segment, parent)
		if err != nil {
			return domain.FolderRef{}, err
		}
		if id == "" {
			id, err = s.createFolder(ctx, segment, parent)
			if err != nil {
				return domain.FolderRef{}, err
			}
		}
		parent = id
	}
	return domain.FolderRef{ID: parent}, nil
}

// FindByHash looks up the object tagged with the content hash. An empty
// folderID searches the whole drive, which is how reconciliation finds
// payloads that moved between folders.
func (s *Store) FindByHash(ctx context.Context, hash, folderID string) (*domain.ObjectRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("appProperties has { key='sha256' and value='%s' } and trashed=false", escapeQuery(hash))
	if folderID != "" {
		query += fmt.Sprintf(" and '%s' in parents", escapeQuery(folderID))
	}

	list, err := s.svc.Files.List().
		Q(query).
		Fields("files(id, md5Checksum, size)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("querying by hash: %w", mapError(err))
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	ref := toObjectRef(list.Files[0])
	return &ref, nil
}

// GetMetadata returns current metadata for a remote object, or nil when
// the object is gone.
func (s *Store) GetMetadata(ctx context.Context, remoteID string) (*domain.ObjectRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	file, err := s.svc.Files.Get(remoteID).
		Fields("id, md5Checksum, size").
		Context(ctx).
		Do()
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, domain.ErrRemoteNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching metadata: %w", mapped)
	}
	ref := toObjectRef(file)
	return &ref, nil
}

// UploadResumable streams the payload into the target folder. The object
// is named after its hash and tagged with the full provenance set, so
// dedup queries and reconciliation work without downloading anything.
func (s *Store) UploadResumable(ctx context.Context, spec domain.UploadSpec) (domain.ObjectRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.ObjectRef{}, err
	}

	meta := &drive.File{
		Name:     objectName(spec),
		Parents:  []string{spec.FolderID},
		MimeType: spec.MIME,
		AppProperties: map[string]string{
			"sha256":         spec.ContentHash,
			"bytes":          strconv.FormatInt(spec.Bytes, 10),
			"mime":           spec.MIME,
			"receivedAtUtc":  spec.ReceivedAtUTC,
			"idempotencyKey": spec.IdempotencyKey,
		},
	}

	call := s.svc.Files.Create(meta).
		Media(spec.Body, googleapi.ContentType(spec.MIME)).
		Fields("id, md5Checksum, size").
		Context(ctx)
	if spec.OnProgress != nil {
		total := spec.Bytes
		call = call.ProgressUpdater(func(current, _ int64) {
			spec.OnProgress(current, total)
		})
	}

	file, err := call.Do()
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("uploading payload: %w", mapError(err))
	}
	return toObjectRef(file), nil
}

// Probe verifies the drive is reachable with the current credentials.
func (s *Store) Probe(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := s.svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return fmt.Errorf("probing drive: %w", mapError(err))
	}
	return nil
}

func (s *Store) findFolder(ctx context.Context, name, parent string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	query := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), folderMIME, escapeQuery(parent))
	list, err := s.svc.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("looking up folder %q: %w", name, mapError(err))
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (s *Store) createFolder(ctx context.Context, name, parent string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	file, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMIME,
		Parents:  []string{parent},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, mapError(err))
	}
	return file.Id, nil
}

func toObjectRef(file *drive.File) domain.ObjectRef {
	ref := domain.ObjectRef{ID: file.Id, Digest: file.Md5Checksum, Bytes: -1}
	if file.Size > 0 {
		ref.Bytes = file.Size
	}
	return ref
}

// objectName renders the stored filename: the hash, plus the original
// extension when one is known.
func objectName(spec domain.UploadSpec) string {
	ext := strings.ToLower(strings.TrimSpace(spec.Ext))
	if ext == "" {
		return spec.ContentHash
	}
	return spec.ContentHash + "." + ext
}

// escapeQuery escapes single quotes inside a Drive query literal.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, `'`, `\'`)
}
