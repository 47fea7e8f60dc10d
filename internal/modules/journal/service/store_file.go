package service

import (
	"agent_trader/internal/models"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// journalDoc: формат файла: карта trade_id -> сделка и время последней записи.
type journalDoc struct {
	Trades      map[string]*models.Trade `json:"trades"`
	LastUpdated time.Time                `json:"last_updated"`
}

// FileStore: JSON-файл, переписывается целиком через временный файл и rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (map[string]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*models.Trade{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.path)
	}
	if len(raw) == 0 {
		return map[string]*models.Trade{}, nil
	}

	var doc journalDoc
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.path)
	}
	if doc.Trades == nil {
		doc.Trades = map[string]*models.Trade{}
	}
	return doc.Trades, nil
}

func (s *FileStore) Save(trades map[string]*models.Trade, at time.Time) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := sonic.ConfigStd.MarshalIndent(journalDoc{Trades: trades, LastUpdated: at.UTC()}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode journal")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".trades-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "rename into %s", s.path)
	}
	return nil
}
