// ABOUTME: Operator-editable template store backed by BadgerDB
// ABOUTME: Overrides live in badger; built-in defaults fill in anything not overridden
package templates

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/dealboard/models"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("template not found")

const keyPrefix = "template:"

type Template struct {
	Key        string `json:"key"`
	Body       string `json:"body"`
	Customized bool   `json:"customized"`
}

// Store holds templates by key. It is safe for concurrent use.
type Store struct {
	db       *badger.DB
	defaults map[string]string
	logger   *zap.Logger
}

// Open opens a persistent store in dir. An empty dir keeps everything in memory.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.Sugar()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create template dir: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open template store: %w", err)
	}

	return &Store{db: db, defaults: Defaults(), logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the override for key, else the built-in default.
func (s *Store) Get(key string) (string, error) {
	var body []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if err == nil {
		return string(body), nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return "", err
	}
	if def, ok := s.defaults[key]; ok {
		return def, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Put stores an override for key.
func (s *Store) Put(key, body string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("template key is required")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), []byte(body))
	})
}

// Reset drops the override so the built-in default applies again.
func (s *Store) Reset(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// List returns every known template: defaults merged with overrides,
// sorted by key.
func (s *Store) List() ([]Template, error) {
	merged := make(map[string]Template, len(s.defaults))
	for k, v := range s.defaults {
		merged[k] = Template{Key: k, Body: v}
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			body, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := strings.TrimPrefix(string(item.Key()), keyPrefix)
			merged[key] = Template{Key: key, Body: string(body), Customized: true}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Template, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Templater renders stored templates against deals.
type Templater struct {
	store *Store
	reg   *models.Registry
	opts  Options
}

func NewTemplater(store *Store, reg *models.Registry) *Templater {
	return &Templater{store: store, reg: reg, opts: DefaultOptions(reg)}
}

// Resolve maps a phase label to its key; other names pass through.
func (t *Templater) Resolve(name string) string {
	if p, err := t.reg.Parse(name); err == nil {
		return string(p)
	}
	return strings.TrimSpace(name)
}

// Raw returns the unrendered template body.
func (t *Templater) Raw(name string) (string, error) {
	return t.store.Get(t.Resolve(name))
}

// RenderFor renders the template named by a phase key, phase label or
// custom key. An empty template counts as missing.
func (t *Templater) RenderFor(name string, deal *models.Deal) (string, error) {
	body, err := t.Raw(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}
	return Render(body, deal, t.opts), nil
}

// Render renders an ad hoc body with the templater's options.
func (t *Templater) Render(body string, deal *models.Deal) string {
	return Render(body, deal, t.opts)
}

// badgerLogger routes badger's logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
