package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/blobstore"
	"github.com/dmitrijs2005/chunkvault/internal/server/config"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/leases"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/chunkvault/internal/server/sink"
)

// -------- in-memory repositories --------

type memState struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
	chunks   map[string]map[int]*models.ChunkRecord
	leases   map[string]leaseRow

	upsertErr      error
	deleteChunkErr error
}

type leaseRow struct {
	owner   string
	expires time.Time
}

func newMemState() *memState {
	return &memState{
		sessions: map[string]*models.UploadSession{},
		chunks:   map[string]map[int]*models.ChunkRecord{},
		leases:   map[string]leaseRow{},
	}
}

type fakeSessionsRepo struct {
	sessions.Repository
	st *memState
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.UploadSession) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if _, ok := f.st.sessions[s.ID]; ok {
		return false, nil
	}
	c := *s
	f.st.sessions[s.ID] = &c
	return true, nil
}

func (f *fakeSessionsRepo) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	s, ok := f.st.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessionsRepo) GetForUpdate(ctx context.Context, id string) (*models.UploadSession, error) {
	return f.Get(ctx, id)
}

func (f *fakeSessionsRepo) RefreshProgress(ctx context.Context, id string, at time.Time) (*models.UploadSession, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	s, ok := f.st.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	s.ReceivedChunks = len(f.st.chunks[id])
	s.IsComplete = s.ReceivedChunks == s.TotalChunks
	s.LastActivity = at
	c := *s
	return &c, nil
}

func (f *fakeSessionsRepo) Delete(ctx context.Context, id string) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if _, ok := f.st.sessions[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.st.sessions, id)
	return nil
}

func (f *fakeSessionsRepo) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var ids []string
	for id, s := range f.st.sessions {
		if s.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeChunksRepo struct {
	chunks.Repository
	st *memState
}

func (f *fakeChunksRepo) Upsert(ctx context.Context, rec *models.ChunkRecord) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if f.st.upsertErr != nil {
		return f.st.upsertErr
	}
	if f.st.chunks[rec.SessionID] == nil {
		f.st.chunks[rec.SessionID] = map[int]*models.ChunkRecord{}
	}
	c := *rec
	f.st.chunks[rec.SessionID][rec.ChunkIndex] = &c
	return nil
}

func (f *fakeChunksRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.ChunkRecord, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return sortedChunks(f.st.chunks[sessionID]), nil
}

func (f *fakeChunksRepo) Summarize(ctx context.Context, sessionID string) (*models.ChunkSummary, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	recs := sortedChunks(f.st.chunks[sessionID])
	if len(recs) == 0 {
		return nil, common.ErrNotFound
	}
	sum := &models.ChunkSummary{
		SessionID:        sessionID,
		TotalChunks:      recs[0].TotalChunks,
		OriginalFileName: recs[0].OriginalFileName,
		FileType:         recs[0].FileType,
		Count:            len(recs),
	}
	for _, r := range recs {
		sum.Bytes += r.SizeBytes
		if r.LastActivity.After(sum.LastActivity) {
			sum.LastActivity = r.LastActivity
		}
	}
	return sum, nil
}

func (f *fakeChunksRepo) ListStale(ctx context.Context, cutoff time.Time) ([]*models.ChunkRecord, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var ids []string
	for id := range f.st.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*models.ChunkRecord
	for _, id := range ids {
		for _, r := range sortedChunks(f.st.chunks[id]) {
			if r.LastActivity.Before(cutoff) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeChunksRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if f.st.deleteChunkErr != nil {
		return 0, f.st.deleteChunkErr
	}
	n := int64(len(f.st.chunks[sessionID]))
	delete(f.st.chunks, sessionID)
	return n, nil
}

func sortedChunks(m map[int]*models.ChunkRecord) []*models.ChunkRecord {
	out := make([]*models.ChunkRecord, 0, len(m))
	for _, r := range m {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

type fakeLeasesRepo struct {
	leases.Repository
	st *memState
}

func (f *fakeLeasesRepo) Acquire(ctx context.Context, folderID, fileName, owner string, now time.Time, ttl time.Duration) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	key := folderID + "/" + fileName
	if l, ok := f.st.leases[key]; ok && !l.expires.Before(now) {
		return false, nil
	}
	f.st.leases[key] = leaseRow{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (f *fakeLeasesRepo) Release(ctx context.Context, folderID, fileName, owner string) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	key := folderID + "/" + fileName
	if l, ok := f.st.leases[key]; ok && l.owner == owner {
		delete(f.st.leases, key)
	}
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	st *memState
}

func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository {
	return &fakeSessionsRepo{st: m.st}
}
func (m *fakeRepoManager) Chunks(db dbx.DBTX) chunks.Repository { return &fakeChunksRepo{st: m.st} }
func (m *fakeRepoManager) Leases(db dbx.DBTX) leases.Repository { return &fakeLeasesRepo{st: m.st} }

// -------- blob store --------

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    map[string]int

	putErr     error
	getErr     map[string]error
	deleteFail map[string]bool
	deleted    []string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		objects:    map[string][]byte{},
		gets:       map[string]int{},
		getErr:     map[string]error{},
		deleteFail: map[string]bool{},
	}
}

var _ blobstore.Store = (*memBlobs)(nil)

func (b *memBlobs) Put(ctx context.Context, path string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[path] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets[path]++
	if err := b.getErr[path]; err != nil {
		return nil, err
	}
	data, ok := b.objects[path]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *memBlobs) DeleteMany(ctx context.Context, paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var failed []string
	for _, p := range paths {
		b.deleted = append(b.deleted, p)
		if b.deleteFail[p] {
			failed = append(failed, p)
			continue
		}
		delete(b.objects, p)
	}
	if len(failed) > 0 {
		return &blobstore.DeleteError{Failed: failed, Err: errors.New("access denied")}
	}
	return nil
}

func (b *memBlobs) has(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok
}

// -------- sink --------

type fakeSink struct {
	mu      sync.Mutex
	files   map[string][]sink.Entry
	folders map[string]string

	listErr      error
	ensureErr    error
	resumableErr error
	simpleErr    error

	resumableCalls int
	simpleCalls    int
	uploads        []sink.UploadRequest
}

func newFakeSink() *fakeSink {
	return &fakeSink{files: map[string][]sink.Entry{}, folders: map[string]string{}}
}

func (s *fakeSink) ListFolder(ctx context.Context, folderID, name string) ([]sink.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []sink.Entry
	for _, e := range s.files[folderID] {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeSink) UploadResumable(ctx context.Context, req sink.UploadRequest) (*sink.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumableCalls++
	if s.resumableErr != nil {
		return nil, s.resumableErr
	}
	return s.store(req), nil
}

func (s *fakeSink) UploadSimple(ctx context.Context, req sink.UploadRequest) (*sink.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simpleCalls++
	if s.simpleErr != nil {
		return nil, s.simpleErr
	}
	return s.store(req), nil
}

func (s *fakeSink) store(req sink.UploadRequest) *sink.Entry {
	s.uploads = append(s.uploads, req)
	e := sink.Entry{
		ID:          "file-" + req.Name,
		Name:        req.Name,
		Size:        int64(len(req.Data)),
		WebViewLink: "https://drive.example/" + req.Name,
	}
	s.files[req.FolderID] = append(s.files[req.FolderID], e)
	return &e
}

func (s *fakeSink) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureErr != nil {
		return "", s.ensureErr
	}
	key := parentID + "/" + name
	if id, ok := s.folders[key]; ok {
		return id, nil
	}
	id := "folder-" + name
	s.folders[key] = id
	return id, nil
}

func (s *fakeSink) uploadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumableCalls + s.simpleCalls
}

// -------- notifier --------

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []*models.FileHandle
	err       error
}

func (n *fakeNotifier) FileDelivered(ctx context.Context, h *models.FileHandle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, h)
	return n.err
}

// -------- fixture --------

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	st       *memState
	blobs    *memBlobs
	sink     *fakeSink
	notifier *fakeNotifier

	sessions      *SessionService
	chunks        *ChunkService
	handoff       *HandoffService
	reconstructor *Reconstructor
	sweeper       *Sweeper
}

func testConfig() *config.Config {
	return &config.Config{
		ChunkPrefix:         "uploads",
		MaxChunkSize:        1 << 20,
		DownloadParallelism: 2,
		DriveRootFolderID:   "root",
		FallbackThreshold:   5 << 20,
		SinkUploadTimeout:   time.Minute,
		HandoffLease:        true,
		HandoffLeaseTTL:     time.Minute,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	setAvailableMemory(t, 8<<30)

	f := &fixture{
		db:       db,
		mock:     mock,
		st:       newMemState(),
		blobs:    newMemBlobs(),
		sink:     newFakeSink(),
		notifier: &fakeNotifier{},
	}
	cfg := testConfig()
	rm := &fakeRepoManager{st: f.st}
	log := logging.NewNop()

	f.sessions = NewSessionService(db, rm, f.blobs, log)
	f.chunks = NewChunkService(db, rm, f.blobs, cfg, log)
	f.handoff = NewHandoffService(db, rm, f.sink, cfg, log)
	f.reconstructor = NewReconstructor(f.sessions, f.chunks, f.handoff, NewMemoryGuard(0), f.notifier, log)
	f.sweeper = NewSweeper(db, rm, f.sessions, log)
	return f
}

// expectTx queues n committed transactions on the mock.
func (f *fixture) expectTx(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

// store writes one chunk of a "clip.mp4" upload inside its own transaction.
func (f *fixture) store(t *testing.T, id string, idx, total int, data string) *models.UploadSession {
	t.Helper()
	f.expectTx(1)
	sess, err := f.chunks.StoreChunk(context.Background(), StoreChunkInput{
		SessionID:   id,
		ChunkIndex:  idx,
		TotalChunks: total,
		Data:        []byte(data),
		FileName:    "clip.mp4",
		FileType:    "video/mp4",
		GymSlug:     "iron-temple",
		GymName:     "Iron Temple",
	})
	if err != nil {
		t.Fatalf("StoreChunk(%s, %d) error: %v", id, idx, err)
	}
	return sess
}

func setNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = prev })
}

func setAvailableMemory(t *testing.T, available uint64) {
	t.Helper()
	prev := virtualMemory
	virtualMemory = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Available: available}, nil
	}
	t.Cleanup(func() { virtualMemory = prev })
}
