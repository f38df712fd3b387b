package sink

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// fakeDrive is a tiny in-memory Drive v3 files endpoint.
type fakeDrive struct {
	mu      sync.Mutex
	files   []*drive.File
	queries []string
	// allDrives records the supportsAllDrives flag of every list call
	allDrives []string
	uploads   int
	failAll   bool
	nextID    int
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		http.Error(w, `{"error":{"code":400,"message":"bad request"}}`, http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		f.allDrives = append(f.allDrives, r.URL.Query().Get("supportsAllDrives"))
		q := r.URL.Query().Get("q")
		f.queries = append(f.queries, q)
		var out []*drive.File
		for _, file := range f.files {
			if strings.Contains(q, "name = '"+file.Name+"'") && strings.Contains(q, "'"+file.Parents[0]+"' in parents") {
				if strings.Contains(q, "mimeType") && file.MimeType != folderMimeType {
					continue
				}
				out = append(out, file)
			}
		}
		_ = json.NewEncoder(w).Encode(&drive.FileList{Files: out})

	case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") != "":
		f.uploads++
		meta, data := readMultipart(r)
		f.nextID++
		meta.Id = "file-" + strconv.Itoa(f.nextID)
		meta.Size = int64(len(data))
		meta.WebViewLink = "https://drive.example/" + meta.Id
		f.files = append(f.files, meta)
		_ = json.NewEncoder(w).Encode(meta)

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/files"):
		var meta drive.File
		_ = json.NewDecoder(r.Body).Decode(&meta)
		f.nextID++
		meta.Id = "folder-" + strconv.Itoa(f.nextID)
		f.files = append(f.files, &meta)
		_ = json.NewEncoder(w).Encode(&meta)

	default:
		http.NotFound(w, r)
	}
}

func readMultipart(r *http.Request) (*drive.File, []byte) {
	_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	mr := multipart.NewReader(r.Body, params["boundary"])

	meta := &drive.File{}
	part, _ := mr.NextPart()
	_ = json.NewDecoder(part).Decode(meta)
	part, _ = mr.NextPart()
	data, _ := io.ReadAll(part)
	return meta, data
}

func newTestSink(t *testing.T, fake *fakeDrive, rateLimit int64) *DriveSink {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewDriveSinkFromService(svc, rateLimit)
}

func TestDriveSink_UploadThenList(t *testing.T) {
	fake := &fakeDrive{}
	s := newTestSink(t, fake, 0)
	ctx := context.Background()

	for _, upload := range []func(context.Context, UploadRequest) (*Entry, error){s.UploadResumable, s.UploadSimple} {
		e, err := upload(ctx, UploadRequest{FolderID: "gym-folder", Name: "clip.mp4", MimeType: "video/mp4", Data: []byte("abcdefghi")})
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "clip.mp4", e.Name)
		assert.Equal(t, int64(9), e.Size)
	}
	assert.Equal(t, 2, fake.uploads)

	entries, err := s.ListFolder(ctx, "gym-folder", "clip.mp4")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = s.ListFolder(ctx, "other-folder", "clip.mp4")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDriveSink_ListEscapesQuotes(t *testing.T) {
	fake := &fakeDrive{}
	s := newTestSink(t, fake, 0)

	_, err := s.ListFolder(context.Background(), "f", `coach's cut.mp4`)
	require.NoError(t, err)
	require.Len(t, fake.queries, 1)
	assert.Contains(t, fake.queries[0], `name = 'coach\'s cut.mp4'`)
	assert.Contains(t, fake.queries[0], "trashed = false")
	assert.Equal(t, []string{"true"}, fake.allDrives)
}

func TestDriveSink_EnsureFolderIsIdempotent(t *testing.T) {
	fake := &fakeDrive{}
	s := newTestSink(t, fake, 0)
	ctx := context.Background()

	id1, err := s.EnsureFolder(ctx, "root", "Iron Temple")
	require.NoError(t, err)
	id2, err := s.EnsureFolder(ctx, "root", "Iron Temple")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, fake.files, 1)

	_, err = s.EnsureFolder(ctx, "root", "")
	assert.Error(t, err)
}

func TestDriveSink_Errors(t *testing.T) {
	fake := &fakeDrive{failAll: true}
	s := newTestSink(t, fake, 0)
	ctx := context.Background()

	_, err := s.UploadSimple(ctx, UploadRequest{FolderID: "f", Name: "a.mp4", Data: []byte("x")})
	assert.ErrorContains(t, err, `upload "a.mp4"`)

	_, err = s.ListFolder(ctx, "f", "a.mp4")
	assert.ErrorContains(t, err, "list drive files")
}

func TestDriveSink_ThrottledUpload(t *testing.T) {
	fake := &fakeDrive{}
	s := newTestSink(t, fake, 1<<20)

	e, err := s.UploadSimple(context.Background(), UploadRequest{FolderID: "f", Name: "small.jpg", MimeType: "image/jpeg", Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.Size)
}
