package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/metastore"
	"github.com/angel2rider/tgcloud/internal/models"
)

// fakeBlobTier is an in-memory stand-in for the Messaging Adapter. Each
// Upload reads the whole stream, keeps its bytes under the returned blob id
// (so download tests can read them back), and hands back a deterministic
// blob id.
type fakeBlobTier struct {
	mu sync.Mutex

	uploadErr   map[string]error // filename -> forced error, consumed once
	deleted     []int
	deleteErr   error
	nextMsgID   int
	sizeOfBlob  map[string][]byte // blobID -> content, for download tests
}

func newFakeBlobTier() *fakeBlobTier {
	return &fakeBlobTier{
		uploadErr:  make(map[string]error),
		sizeOfBlob: make(map[string][]byte),
	}
}

func (f *fakeBlobTier) Upload(ctx context.Context, token string, chat int64, filename string, stream io.Reader) (blobtier.Result, error) {
	data, err := io.ReadAll(stream)
	if err != nil {
		return blobtier.Result{}, err
	}

	f.mu.Lock()
	if err, ok := f.uploadErr[filename]; ok {
		delete(f.uploadErr, filename)
		f.mu.Unlock()
		return blobtier.Result{}, err
	}
	f.nextMsgID++
	msgID := f.nextMsgID
	blobID := fmt.Sprintf("blob-%s-%d", filename, msgID)
	f.sizeOfBlob[blobID] = data
	f.mu.Unlock()

	return blobtier.Result{BlobID: blobID, MsgID: msgID}, nil
}

func (f *fakeBlobTier) ResolveDownload(ctx context.Context, token, blobID string) (string, error) {
	return "mem://" + blobID, nil
}

func (f *fakeBlobTier) StreamDownload(ctx context.Context, url string) (io.ReadCloser, error) {
	blobID := url[len("mem://"):]
	f.mu.Lock()
	data, ok := f.sizeOfBlob[blobID]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fakeBlobTier: no such blob %s", blobID)
	}
	return io.NopCloser(newByteReader(data)), nil
}

func (f *fakeBlobTier) Delete(ctx context.Context, token string, chat int64, msgID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, msgID)
	return nil
}

func newByteReader(b []byte) io.Reader {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &byteReader{data: cp}
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// fakeMetaStore is an in-memory stand-in for the Metadata Store.
type fakeMetaStore struct {
	mu    sync.Mutex
	files map[string]models.FileMetadata

	insertErr error
	deleteErr error
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{files: make(map[string]models.FileMetadata)}
}

func (s *fakeMetaStore) InsertFile(ctx context.Context, f models.FileMetadata) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.Name] = f
	return nil
}

func (s *fakeMetaStore) GetFileByName(ctx context.Context, name string) (*models.FileMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return nil, metastore.ErrNotFound
	}
	return &f, nil
}

func (s *fakeMetaStore) ListFiles(ctx context.Context, prefix string) ([]models.FileMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FileMetadata
	for _, f := range s.files {
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeMetaStore) RenameFile(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[newName]; exists {
		return metastore.ErrAlreadyExists
	}
	f, ok := s.files[oldName]
	if !ok {
		return metastore.ErrNotFound
	}
	delete(s.files, oldName)
	f.Name = newName
	s.files[newName] = f
	return nil
}

func (s *fakeMetaStore) DeleteFile(ctx context.Context, name string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return metastore.ErrNotFound
	}
	delete(s.files, name)
	return nil
}

// fakeBotManager is an in-memory stand-in for the Bot Manager.
type fakeBotManager struct {
	mu      sync.Mutex
	bots    []models.Bot
	usage   map[string]int
}

func newFakeBotManager(bots ...models.Bot) *fakeBotManager {
	return &fakeBotManager{bots: bots, usage: make(map[string]int)}
}

func (m *fakeBotManager) UploadBot(ctx context.Context) (models.Bot, error) {
	if len(m.bots) == 0 {
		return models.Bot{}, fmt.Errorf("fakeBotManager: no bots")
	}
	return m.bots[0], nil
}

func (m *fakeBotManager) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	if len(m.bots) == 0 {
		return nil, fmt.Errorf("fakeBotManager: no bots")
	}
	out := make([]models.Bot, len(m.bots))
	copy(out, m.bots)
	return out, nil
}

func (m *fakeBotManager) Token(ctx context.Context, botID string) (string, error) {
	for _, b := range m.bots {
		if b.BotID == botID {
			return b.Token, nil
		}
	}
	return "", fmt.Errorf("fakeBotManager: unknown bot %s", botID)
}

func (m *fakeBotManager) TokenMap(ctx context.Context, botIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(botIDs))
	for _, id := range botIDs {
		tok, err := m.Token(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = tok
	}
	return out, nil
}

func (m *fakeBotManager) IncrementUsage(ctx context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[botID]++
	return nil
}

func fixedID(id string) IDGenerator {
	return func() string { return id }
}
