package services

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/storage"
)

// IncomingFile is one multipart part of an upload request. Endpoint is the
// form field name.
type IncomingFile struct {
	Endpoint string
	Name     string
	Size     int64
	Body     io.Reader
}

// UploadResult is the partial-success outcome of an upload request.
type UploadResult struct {
	Accepted    []string          `json:"accepted"`
	FailedFiles map[string]string `json:"failedFiles"`
}

type pendingFile struct {
	ticket *Ticket
	file   IncomingFile
}

// UploadSession is the request-scoped state of one upload: the credential,
// its admission and the files admitted so far.
type UploadSession struct {
	RelayName string
	Key       *models.SubjectKey
	admission *Admission
	pending   []pendingFile
}

// IntakeLimit bounds how many bytes of a single part are worth reading.
func (u *UploadSession) IntakeLimit() int64 {
	return u.admission.IntakeLimit()
}

// Add runs the count, update and extension checks for f. Rejected files are
// recorded in the session's reject ledger and reported as false.
func (u *UploadSession) Add(f IncomingFile) bool {
	t, err := u.admission.Admit(f.Endpoint, f.Name)
	if err != nil {
		return false
	}
	u.pending = append(u.pending, pendingFile{ticket: t, file: f})
	return true
}

// Credentials loads and stores the upload state of subject keys.
// SubjectKeyService implements it.
type Credentials interface {
	Authenticate(ctx context.Context, relayName, subjectKey string) (*models.SubjectKey, error)
	SaveUploadState(ctx context.Context, relayName, subjectKey string, state models.UploadState) error
}

type UploadService struct {
	keys   Credentials
	store  storage.Storage
	logger logging.Logger
}

func NewUploadService(keys Credentials, store storage.Storage, logger logging.Logger) *UploadService {
	return &UploadService{keys: keys, store: store, logger: logger.With("module", "uploads")}
}

// Begin authenticates the credential and opens an upload session over a
// copy of its upload state.
func (s *UploadService) Begin(ctx context.Context, relayName, subjectKey string) (*UploadSession, error) {
	key, err := s.keys.Authenticate(ctx, relayName, subjectKey)
	if err != nil {
		return nil, err
	}
	return &UploadSession{
		RelayName: relayName,
		Key:       key,
		admission: NewAdmission(key.UploadState),
	}, nil
}

// Commit applies the size check, writes every surviving file to remote
// storage and persists the resulting upload state. Per-file failures are
// reported in the result; only a failure to persist the state is returned
// as an error.
func (s *UploadService) Commit(ctx context.Context, u *UploadSession) (*UploadResult, error) {
	result := &UploadResult{Accepted: []string{}}

	for _, p := range u.pending {
		if err := u.admission.CheckSize(p.ticket, p.file.Size); err != nil {
			continue
		}
		if err := s.write(ctx, u.admission, p); err != nil {
			s.logger.Warn(ctx, "upload failed", "relay", u.RelayName, "endpoint", p.ticket.Endpoint, "file", p.ticket.Name, "error", err)
			_ = u.admission.Revoke(p.ticket, fmt.Errorf("%w: %s: %v", common.ErrUploadFailed, p.ticket.Name, err))
			continue
		}
		result.Accepted = append(result.Accepted, p.ticket.Name)
	}

	if err := s.keys.SaveUploadState(ctx, u.RelayName, u.Key.SubjectKey, u.admission.State()); err != nil {
		return nil, err
	}
	u.Key.UploadState = u.admission.State()

	result.FailedFiles = u.admission.Rejected()
	s.logger.Info(ctx, "upload processed", "relay", u.RelayName,
		"accepted", len(result.Accepted), "rejected", len(result.FailedFiles))
	return result, nil
}

// write creates the first version of a file or replaces the stored one.
func (s *UploadService) write(ctx context.Context, a *Admission, p pendingFile) error {
	rec := a.Record(p.ticket)
	if rec.FileID != "" {
		return s.store.ReplaceFile(ctx, rec.FileID, p.file.Body, p.file.Size)
	}
	scope, _ := a.Scope(p.ticket.Endpoint)
	id, err := s.store.UploadFile(ctx, scope.RemoteFolderID, p.file.Name, p.file.Body, p.file.Size)
	if err != nil {
		return err
	}
	rec.FileID = id
	return nil
}
