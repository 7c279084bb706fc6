package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// apiKeyPrefix API 私钥在库中的键前缀
const apiKeyPrefix = "zex/apikey/"

// ErrNotFound 键不存在
var ErrNotFound = errors.New("secretstore: key not found")

// Store 基于 Badger 的加密 KV 存储，用于保存 API 私钥
// 加密由 Badger 的选项提供（value log + key registry），不是本封装实现的
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 16/24/32 字节；为空时不加密
	ReadOnly      bool
	// InMemory 仅用于测试，忽略 Path
	InMemory bool
}

func Open(opts OpenOptions) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	path := opts.Path
	if opts.InMemory {
		path = ""
	}
	bopts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithInMemory(opts.InMemory).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 需要索引缓存
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(16 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("secretstore: open %s: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) opened() error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	return nil
}

func normalizeKey(key string) ([]byte, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return nil, errors.New("secretstore: key is empty")
	}
	return []byte(k), nil
}

// GetString 读取字符串值；不存在时返回 found=false
func (s *Store) GetString(key string) (string, bool, error) {
	if err := s.opened(); err != nil {
		return "", false, err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return "", false, err
	}
	var (
		out   string
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) SetString(key string, val string) error {
	if err := s.opened(); err != nil {
		return err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

func (s *Store) Delete(key string) error {
	if err := s.opened(); err != nil {
		return err
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// PutAPIKey 以名称保存十六进制 API 私钥
func (s *Store) PutAPIKey(name, hexKey string) error {
	raw := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if b, err := hex.DecodeString(raw); err != nil || len(b) != 32 {
		return errors.New("secretstore: api key must be 32 bytes of hex")
	}
	return s.SetString(apiKeyPrefix+name, raw)
}

// APIKey 按名称读取 API 私钥
func (s *Store) APIKey(name string) (string, error) {
	v, ok, err := s.GetString(apiKeyPrefix + name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// APIKeyNames 列出已保存的 API 私钥名称（按字典序）
func (s *Store) APIKeyNames() ([]string, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(apiKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), apiKeyPrefix))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// ParseKey 解析加密密钥（hex 或 base64，16/24/32 字节）；输入为空时返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		return checkKeyLen(b)
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return checkKeyLen(b)
	}
	return nil, errors.New("key must be hex or base64")
}

func checkKeyLen(b []byte) ([]byte, error) {
	switch len(b) {
	case 16, 24, 32:
		return b, nil
	}
	return nil, fmt.Errorf("decoded key length must be 16, 24 or 32, got %d", len(b))
}
