package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/dbx"
	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/folders"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/exius/internal/server/repositories/subjectkeys"
)

// MaxKeyAttempts bounds how many random candidates are tried before issuance
// gives up with common.ErrCollisionRetryExceeded.
const MaxKeyAttempts = 5

const (
	tokenSubjectKey = "subjectKey"
	tokenPullCount  = "pullCount"
)

// randomDigits is a seam for tests.
var randomDigits = common.RandomDigits

// UpdateSubjectKeyParams overwrite the metadata and/or upload state of a
// subject key.
type UpdateSubjectKeyParams struct {
	RelayName   string             `json:"relayName"`
	SubjectKey  string             `json:"subjectKey"`
	MetaData    *string            `json:"metaData"`
	UploadState models.UploadState `json:"uploadState"`
}

type SubjectKeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	folders     *folders.Materializer
	logger      logging.Logger
}

func NewSubjectKeyService(db *sql.DB, m repomanager.RepositoryManager, f *folders.Materializer, logger logging.Logger) *SubjectKeyService {
	return &SubjectKeyService{
		db:          db,
		repomanager: m,
		folders:     f,
		logger:      logger.With("module", "subjectkeys"),
	}
}

// ResolveCustomPath substitutes the literal tokens "subjectKey" and
// "pullCount" anywhere in template. It is not segment-aware.
func ResolveCustomPath(template, subjectKey string, pullCount int64) string {
	out := strings.ReplaceAll(template, tokenSubjectKey, subjectKey)
	return strings.ReplaceAll(out, tokenPullCount, strconv.FormatInt(pullCount, 10))
}

// Issue creates a subject key for relayName, consuming one pull.
func (s *SubjectKeyService) Issue(ctx context.Context, relayName, metaData string) (*models.SubjectKey, error) {
	keys := s.repomanager.SubjectKeys(s.db, relayName)

	exists, err := keys.TableExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	if !exists {
		return nil, common.ErrUnknownRelay
	}

	relay, err := s.repomanager.Relays(s.db).Get(ctx, relayName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownRelay
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}

	if relay.CurrentRelayPulls+1 > relay.MaxRelayPulls {
		return nil, common.ErrQuotaExhausted
	}

	candidate, err := s.newKey(ctx, keys)
	if err != nil {
		return nil, err
	}

	state := make(models.UploadState, len(relay.WriteEndpoints))
	for name, scope := range relay.WriteEndpoints {
		resolved, err := s.bindCustomPath(ctx, scope, candidate, relay.CurrentRelayPulls)
		if err != nil {
			return nil, err
		}
		state[name] = &models.EndpointState{Scope: resolved, Files: map[string]*models.FileRecord{}}
	}

	key := &models.SubjectKey{
		SubjectKey:  candidate,
		UploadState: state,
		RelayNumber: relay.CurrentRelayPulls,
		MetaData:    metaData,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Relays(tx).IncrementPulls(ctx, relayName); err != nil {
			return err
		}
		return s.repomanager.SubjectKeys(tx, relayName).Insert(ctx, key)
	})
	if err != nil {
		if errors.Is(err, common.ErrQuotaExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}

	s.logger.Info(ctx, "subject key issued", "relay", relayName, "relay_number", key.RelayNumber)
	return key, nil
}

func (s *SubjectKeyService) newKey(ctx context.Context, keys subjectkeys.Repository) (string, error) {
	for i := 0; i < MaxKeyAttempts; i++ {
		candidate, err := randomDigits(common.SubjectKeyLength)
		if err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		taken, err := keys.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrPersistence, err)
		}
		if !taken {
			return candidate, nil
		}
		s.logger.Debug(ctx, "subject key collision", "attempt", i+1)
	}
	return "", common.ErrCollisionRetryExceeded
}

// bindCustomPath resolves the endpoint's custom path for one key. When the
// template contained a token the resolved path is materialized below the
// endpoint folder and becomes the key's upload folder.
func (s *SubjectKeyService) bindCustomPath(ctx context.Context, scope models.EndpointScope, key string, pulls int64) (models.EndpointScope, error) {
	scope.FileTypes = append([]string(nil), scope.FileTypes...)
	resolved := ResolveCustomPath(scope.CustomPath, key, pulls)
	if resolved != scope.CustomPath {
		id, err := s.folders.MaterializePath(ctx, scope.RemoteFolderID, resolved)
		if err != nil {
			return scope, err
		}
		scope.RemoteFolderID = id
	}
	scope.BoxRelativePath += resolved
	scope.CustomPath = ""
	return scope, nil
}

// Get returns a subject key of relayName.
func (s *SubjectKeyService) Get(ctx context.Context, relayName, key string) (*models.SubjectKey, error) {
	if err := s.requireRelay(ctx, relayName); err != nil {
		return nil, err
	}
	item, err := s.repomanager.SubjectKeys(s.db, relayName).Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownSubjectKey
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return item, nil
}

// List returns every subject key issued for relayName.
func (s *SubjectKeyService) List(ctx context.Context, relayName string) ([]*models.SubjectKey, error) {
	if err := s.requireRelay(ctx, relayName); err != nil {
		return nil, err
	}
	items, err := s.repomanager.SubjectKeys(s.db, relayName).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return items, nil
}

// Update overwrites metadata and/or upload state.
func (s *SubjectKeyService) Update(ctx context.Context, p UpdateSubjectKeyParams) (*models.SubjectKey, error) {
	if p.RelayName == "" || p.SubjectKey == "" {
		return nil, fmt.Errorf("%w: relayName and subjectKey are required", common.ErrorValidation)
	}
	if err := s.requireRelay(ctx, p.RelayName); err != nil {
		return nil, err
	}
	err := s.repomanager.SubjectKeys(s.db, p.RelayName).Update(ctx, p.SubjectKey, &subjectkeys.Update{
		UploadState: p.UploadState,
		MetaData:    p.MetaData,
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownSubjectKey
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return s.Get(ctx, p.RelayName, p.SubjectKey)
}

// Delete removes a subject key. The consumed pull is not returned.
func (s *SubjectKeyService) Delete(ctx context.Context, relayName, key string) error {
	if err := s.requireRelay(ctx, relayName); err != nil {
		return err
	}
	if err := s.repomanager.SubjectKeys(s.db, relayName).Delete(ctx, key); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownSubjectKey
		}
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}

// Authenticate resolves the credential presented by an upload request.
func (s *SubjectKeyService) Authenticate(ctx context.Context, relayName, key string) (*models.SubjectKey, error) {
	if relayName == "" || !common.IsDigits(key) || len(key) != common.SubjectKeyLength {
		return nil, common.ErrorUnauthorized
	}
	return s.Get(ctx, relayName, key)
}

// SaveUploadState writes the whole upload state of key back.
func (s *SubjectKeyService) SaveUploadState(ctx context.Context, relayName, key string, state models.UploadState) error {
	err := s.repomanager.SubjectKeys(s.db, relayName).Update(ctx, key, &subjectkeys.Update{UploadState: state})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownSubjectKey
		}
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}

func (s *SubjectKeyService) requireRelay(ctx context.Context, relayName string) error {
	exists, err := s.repomanager.SubjectKeys(s.db, relayName).TableExists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	if !exists {
		return common.ErrUnknownRelay
	}
	return nil
}
