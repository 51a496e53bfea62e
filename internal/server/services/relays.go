package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/exius/internal/bytesize"
	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/cryptox"
	"github.com/dmitrijs2005/exius/internal/dbx"
	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/folders"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/repositories/relays"
	"github.com/dmitrijs2005/exius/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/exius/internal/server/repositories/subjectkeys"
)

// CreateRelayParams are the caller-supplied fields of a new relay. Zero
// values receive defaults.
type CreateRelayParams struct {
	RelayName      string                `json:"relayName"`
	Repository     string                `json:"repository"`
	Password       string                `json:"password"`
	WriteEndpoints models.WriteEndpoints `json:"writeEndpoints"`
	BaseFolder     *models.BaseFolder    `json:"baseFolder"`
	MaxRelayPulls  *int64                `json:"maxRelayPulls"`
	CustomPath     string                `json:"customPath"`
	MetaData       string                `json:"metaData"`
}

// UpdateRelayParams overwrite whole fields of an existing relay. Nil fields
// are left untouched; nested objects are replaced, never merged.
type UpdateRelayParams struct {
	RelayName      string                `json:"relayName"`
	Repository     *string               `json:"repository"`
	Password       *string               `json:"password"`
	WriteEndpoints models.WriteEndpoints `json:"writeEndpoints"`
	BaseFolder     *models.BaseFolder    `json:"baseFolder"`
	MaxRelayPulls  *int64                `json:"maxRelayPulls"`
	CustomPath     *string               `json:"customPath"`
	MetaData       *string               `json:"metaData"`
}

type RelayService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	folders     *folders.Materializer
	logger      logging.Logger
}

func NewRelayService(db *sql.DB, m repomanager.RepositoryManager, f *folders.Materializer, logger logging.Logger) *RelayService {
	return &RelayService{
		db:          db,
		repomanager: m,
		folders:     f,
		logger:      logger.With("module", "relays"),
	}
}

func validateEndpoints(endpoints models.WriteEndpoints) error {
	for name, scope := range endpoints {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty endpoint name", common.ErrorValidation)
		}
		if _, err := bytesize.Parse(scope.MaxFileSize); err != nil {
			return fmt.Errorf("%w: endpoint %s: %v", common.ErrorValidation, name, err)
		}
		if scope.MaxFiles < 0 || scope.MaxFileUpdates < 0 {
			return fmt.Errorf("%w: endpoint %s: negative limit", common.ErrorValidation, name)
		}
	}
	return nil
}

// Create provisions a relay: folders first, then the relay row and its
// credential table in one transaction. Folders created before a failed
// transaction are reported, not removed.
func (s *RelayService) Create(ctx context.Context, p CreateRelayParams) (*models.Relay, error) {
	if p.RelayName == "" || p.Repository == "" {
		return nil, fmt.Errorf("%w: relayName and repository are required", common.ErrorValidation)
	}
	if len(p.RelayName) > subjectkeys.MaxRelayNameLength {
		return nil, fmt.Errorf("%w: relayName is longer than %d bytes", common.ErrorValidation, subjectkeys.MaxRelayNameLength)
	}

	relay := &models.Relay{
		RelayName:      p.RelayName,
		Repository:     p.Repository,
		WriteEndpoints: p.WriteEndpoints.WithDefaults(),
		MaxRelayPulls:  models.DefaultMaxRelayPulls,
		CustomPath:     p.CustomPath,
		MetaData:       p.MetaData,
	}
	if p.BaseFolder != nil {
		relay.BaseFolder = *p.BaseFolder
	}
	relay.BaseFolder = relay.BaseFolder.WithDefaults()
	if p.MaxRelayPulls != nil {
		if *p.MaxRelayPulls < 0 {
			return nil, fmt.Errorf("%w: maxRelayPulls must not be negative", common.ErrorValidation)
		}
		relay.MaxRelayPulls = *p.MaxRelayPulls
	}
	if relay.CustomPath == "" {
		relay.CustomPath = models.DefaultRelayCustomPath
	}
	if err := validateEndpoints(relay.WriteEndpoints); err != nil {
		return nil, err
	}

	_, err := s.repomanager.Relays(s.db).Get(ctx, relay.RelayName)
	switch {
	case err == nil:
		return nil, common.ErrDuplicateRelay
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}

	if err := s.provisionFolders(ctx, relay); err != nil {
		return nil, err
	}

	relay.Password = cryptox.HashPassword(p.Password)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Relays(tx).Insert(ctx, relay); err != nil {
			return err
		}
		return s.repomanager.SubjectKeys(tx, relay.RelayName).CreateTable(ctx)
	})
	if err != nil {
		orphaned := boundFolders(relay)
		s.logger.Warn(ctx, "relay persistence failed after folders were provisioned",
			"relay", relay.RelayName, "folders", orphaned, "error", err)
		if errors.Is(err, common.ErrDuplicateRelay) {
			return nil, fmt.Errorf("%w: %w", common.ErrPartialProvisioning, err)
		}
		return nil, fmt.Errorf("%w: %w: %v", common.ErrPartialProvisioning, common.ErrPersistence, err)
	}

	s.logger.Info(ctx, "relay created", "relay", relay.RelayName, "endpoints", len(relay.WriteEndpoints))
	return relay, nil
}

// provisionFolders materializes the base folder and one folder per distinct
// boxRelativePath, binding ids and share links onto relay.
func (s *RelayService) provisionFolders(ctx context.Context, relay *models.Relay) error {
	var paths []string
	for _, scope := range relay.WriteEndpoints {
		paths = append(paths, scope.BoxRelativePath)
	}
	sort.Strings(paths)

	tree, err := s.folders.MaterializeMany(ctx, relay.BaseFolder.RootID, relay.BaseFolder.Path, paths)
	if err != nil {
		return err
	}

	links := map[string]string{}
	link := func(id string) (string, error) {
		if l, ok := links[id]; ok {
			return l, nil
		}
		l, err := s.folders.ShareLink(ctx, id)
		if err != nil {
			return "", err
		}
		links[id] = l
		return l, nil
	}

	relay.BaseFolder.RemoteFolderID = tree.BaseID
	if relay.BaseFolder.RemoteShareLink, err = link(tree.BaseID); err != nil {
		return err
	}
	for name, scope := range relay.WriteEndpoints {
		scope.RemoteFolderID = tree.Subtrees[scope.BoxRelativePath]
		if scope.RemoteShareLink, err = link(scope.RemoteFolderID); err != nil {
			return err
		}
		relay.WriteEndpoints[name] = scope
	}
	return nil
}

func boundFolders(relay *models.Relay) []string {
	ids := []string{relay.BaseFolder.RemoteFolderID}
	for _, scope := range relay.WriteEndpoints {
		ids = append(ids, scope.RemoteFolderID)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the relay named name.
func (s *RelayService) Get(ctx context.Context, name string) (*models.Relay, error) {
	relay, err := s.repomanager.Relays(s.db).Get(ctx, name)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownRelay
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return relay, nil
}

// Update overwrites the supplied fields. New endpoints without a remote
// folder are materialized below the relay's base folder.
func (s *RelayService) Update(ctx context.Context, p UpdateRelayParams) (*models.Relay, error) {
	if p.RelayName == "" {
		return nil, fmt.Errorf("%w: relayName is required", common.ErrorValidation)
	}
	current, err := s.Get(ctx, p.RelayName)
	if err != nil {
		return nil, err
	}

	upd := &relays.Update{
		Repository: p.Repository,
		BaseFolder: p.BaseFolder,
		CustomPath: p.CustomPath,
		MetaData:   p.MetaData,
	}
	if p.Password != nil {
		hashed := cryptox.HashPassword(*p.Password)
		upd.Password = &hashed
	}
	if p.MaxRelayPulls != nil {
		if *p.MaxRelayPulls < 0 {
			return nil, fmt.Errorf("%w: maxRelayPulls must not be negative", common.ErrorValidation)
		}
		if *p.MaxRelayPulls < current.CurrentRelayPulls {
			return nil, fmt.Errorf("%w: maxRelayPulls %d is below the %d pull(s) already made",
				common.ErrorValidation, *p.MaxRelayPulls, current.CurrentRelayPulls)
		}
		upd.MaxRelayPulls = p.MaxRelayPulls
	}
	if p.WriteEndpoints != nil {
		endpoints := p.WriteEndpoints.WithDefaults()
		if err := validateEndpoints(endpoints); err != nil {
			return nil, err
		}
		base := current.BaseFolder
		if p.BaseFolder != nil {
			base = *p.BaseFolder
		}
		for name, scope := range endpoints {
			if scope.RemoteFolderID != "" {
				continue
			}
			id, err := s.folders.MaterializePath(ctx, base.RemoteFolderID, scope.BoxRelativePath)
			if err != nil {
				return nil, err
			}
			scope.RemoteFolderID = id
			if scope.RemoteShareLink, err = s.folders.ShareLink(ctx, id); err != nil {
				return nil, err
			}
			endpoints[name] = scope
		}
		upd.WriteEndpoints = endpoints
	}

	if err := s.repomanager.Relays(s.db).Update(ctx, p.RelayName, upd); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownRelay
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return s.Get(ctx, p.RelayName)
}

// Delete removes the relay and, when dropTable is set, its credential table.
func (s *RelayService) Delete(ctx context.Context, name string, dropTable bool) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Relays(tx).Delete(ctx, name); err != nil {
			return err
		}
		if dropTable {
			return s.repomanager.SubjectKeys(tx, name).DropTable(ctx)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownRelay
		}
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	s.logger.Info(ctx, "relay deleted", "relay", name, "drop_table", dropTable)
	return nil
}

// IncrementPullCount consumes one pull and returns the new count.
func (s *RelayService) IncrementPullCount(ctx context.Context, name string) (int64, error) {
	if _, err := s.Get(ctx, name); err != nil {
		return 0, err
	}
	n, err := s.repomanager.Relays(s.db).IncrementPulls(ctx, name)
	if err != nil {
		if errors.Is(err, common.ErrQuotaExhausted) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return n, nil
}

// CheckPassword verifies the shared secret required to issue keys. Relays
// without a password accept anything.
func (s *RelayService) CheckPassword(ctx context.Context, name, password string) error {
	relay, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if !relay.HasPassword() {
		return nil
	}
	ok, err := cryptox.VerifyPassword(relay.Password, password)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if !ok {
		return common.ErrorUnauthorized
	}
	return nil
}
