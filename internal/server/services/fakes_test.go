package services

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/dbx"
	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/folders"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/repositories/relays"
	"github.com/dmitrijs2005/exius/internal/server/repositories/subjectkeys"
	"github.com/dmitrijs2005/exius/internal/server/storage"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// --- helpers ---

// newTxDB returns a real database handle so dbx.WithTx can begin and commit.
// The fake repositories below keep their own state and ignore it.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeStore struct {
	mu         sync.Mutex
	relays     map[string]*models.Relay
	keys       map[string]map[string]*models.SubjectKey
	insertErr  error
	keyErr     error
	getErr     error
	takenKeys  map[string]bool
	existCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		relays:    map[string]*models.Relay{},
		keys:      map[string]map[string]*models.SubjectKey{},
		takenKeys: map[string]bool{},
	}
}

type fakeRepoManager struct {
	s *fakeStore
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Relays(dbx.DBTX) relays.Repository      { return &fakeRelays{s: m.s} }
func (m *fakeRepoManager) SubjectKeys(_ dbx.DBTX, relayName string) subjectkeys.Repository {
	return &fakeKeys{s: m.s, relay: relayName}
}

type fakeRelays struct {
	s *fakeStore
}

func copyRelay(r *models.Relay) *models.Relay {
	cp := *r
	cp.WriteEndpoints = make(models.WriteEndpoints, len(r.WriteEndpoints))
	for k, v := range r.WriteEndpoints {
		v.FileTypes = append([]string(nil), v.FileTypes...)
		cp.WriteEndpoints[k] = v
	}
	return &cp
}

func (f *fakeRelays) Insert(_ context.Context, r *models.Relay) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.insertErr != nil {
		return f.s.insertErr
	}
	if _, ok := f.s.relays[r.RelayName]; ok {
		return common.ErrDuplicateRelay
	}
	f.s.relays[r.RelayName] = copyRelay(r)
	return nil
}

func (f *fakeRelays) Get(_ context.Context, name string) (*models.Relay, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.getErr != nil {
		return nil, f.s.getErr
	}
	r, ok := f.s.relays[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyRelay(r), nil
}

func (f *fakeRelays) Update(_ context.Context, name string, upd *relays.Update) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.relays[name]
	if !ok {
		return common.ErrorNotFound
	}
	if upd.Repository != nil {
		r.Repository = *upd.Repository
	}
	if upd.Password != nil {
		r.Password = *upd.Password
	}
	if upd.WriteEndpoints != nil {
		r.WriteEndpoints = upd.WriteEndpoints
	}
	if upd.BaseFolder != nil {
		r.BaseFolder = *upd.BaseFolder
	}
	if upd.MaxRelayPulls != nil {
		r.MaxRelayPulls = *upd.MaxRelayPulls
	}
	if upd.CustomPath != nil {
		r.CustomPath = *upd.CustomPath
	}
	if upd.MetaData != nil {
		r.MetaData = *upd.MetaData
	}
	return nil
}

func (f *fakeRelays) Delete(_ context.Context, name string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.relays[name]; !ok {
		return common.ErrorNotFound
	}
	delete(f.s.relays, name)
	return nil
}

// IncrementPulls mirrors the guarded UPDATE of the postgres repository.
func (f *fakeRelays) IncrementPulls(_ context.Context, name string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.relays[name]
	if !ok || r.CurrentRelayPulls+1 > r.MaxRelayPulls {
		return 0, common.ErrQuotaExhausted
	}
	r.CurrentRelayPulls++
	return r.CurrentRelayPulls, nil
}

type fakeKeys struct {
	s     *fakeStore
	relay string
}

func (f *fakeKeys) CreateTable(context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.keys[f.relay]; !ok {
		f.s.keys[f.relay] = map[string]*models.SubjectKey{}
	}
	return nil
}

func (f *fakeKeys) DropTable(context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.keys, f.relay)
	return nil
}

func (f *fakeKeys) TableExists(context.Context) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	_, ok := f.s.keys[f.relay]
	return ok, nil
}

func (f *fakeKeys) Exists(_ context.Context, key string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.existCalls++
	if f.s.takenKeys[key] {
		return true, nil
	}
	_, ok := f.s.keys[f.relay][key]
	return ok, nil
}

func (f *fakeKeys) Insert(_ context.Context, key *models.SubjectKey) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.keyErr != nil {
		return f.s.keyErr
	}
	table, ok := f.s.keys[f.relay]
	if !ok {
		return common.ErrorNotFound
	}
	cp := *key
	cp.UploadState = key.UploadState.Clone()
	table[key.SubjectKey] = &cp
	return nil
}

func (f *fakeKeys) Get(_ context.Context, key string) (*models.SubjectKey, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	k, ok := f.s.keys[f.relay][key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *k
	cp.UploadState = k.UploadState.Clone()
	return &cp, nil
}

func (f *fakeKeys) List(context.Context) ([]*models.SubjectKey, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.SubjectKey
	for _, k := range f.s.keys[f.relay] {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelayNumber < out[j].RelayNumber })
	return out, nil
}

func (f *fakeKeys) Update(_ context.Context, key string, upd *subjectkeys.Update) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	k, ok := f.s.keys[f.relay][key]
	if !ok {
		return common.ErrorNotFound
	}
	if upd.UploadState != nil {
		k.UploadState = upd.UploadState.Clone()
	}
	if upd.MetaData != nil {
		k.MetaData = *upd.MetaData
	}
	return nil
}

func (f *fakeKeys) Delete(_ context.Context, key string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.keys[f.relay][key]; !ok {
		return common.ErrorNotFound
	}
	delete(f.s.keys[f.relay], key)
	return nil
}

// fixture wires the services over fakes and an in-memory remote store.
type fixture struct {
	db      *sql.DB
	data    *fakeStore
	remote  *storage.MemoryStorage
	logs    *bytes.Buffer
	relays  *RelayService
	keys    *SubjectKeyService
	uploads *UploadService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:     newTxDB(t),
		data:   newFakeStore(),
		remote: storage.NewMemoryStorage(),
		logs:   &bytes.Buffer{},
	}
	logger := logging.NewJSONLogger(f.logs, true)
	rm := &fakeRepoManager{s: f.data}
	m := folders.NewMaterializer(f.remote, logger)
	f.relays = NewRelayService(f.db, rm, m, logger)
	f.keys = NewSubjectKeyService(f.db, rm, m, logger)
	f.uploads = NewUploadService(f.keys, f.remote, logger)
	return f
}

func pulls(n int64) *int64 { return &n }

// stubDigits replaces the key generator with a fixed sequence for the
// duration of the test.
func stubDigits(t *testing.T, seq ...string) {
	t.Helper()
	orig := randomDigits
	var mu sync.Mutex
	i := 0
	randomDigits = func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		v := seq[i%len(seq)]
		i++
		return v, nil
	}
	t.Cleanup(func() { randomDigits = orig })
}
