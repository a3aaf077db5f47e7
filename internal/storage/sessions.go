package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"chatdesk/internal/chat"
)

const documentSuffix = ".json"

// JSONStore 每个会话一个 JSON 文件的存储实现
// JSONStore keeps one JSON document per session in a directory.
type JSONStore struct {
	dir string
}

// NewJSONStore 创建 JSON 文件存储；目录在首次保存时创建
// NewJSONStore creates a JSON file store; the directory is created on first save.
func NewJSONStore(dir string) (*JSONStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("sessions dir is empty")
	}
	return &JSONStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *JSONStore) Dir() string { return s.dir }

func (s *JSONStore) path(id string) string {
	return filepath.Join(s.dir, id+documentSuffix)
}

func (s *JSONStore) Save(id string, messages []chat.Message, meta SessionMeta) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &StorageDirectoryError{Dir: s.dir, Err: err}
	}

	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		// 保留首次保存时间 / keep the first save time across overwrites
		if prev, err := s.readDocument(id); err == nil && prev.CreatedAt != "" {
			meta.CreatedAt = prev.CreatedAt
		} else {
			meta.CreatedAt = now
		}
	}
	meta.UpdatedAt = now
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = inferTitle(messages)
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	doc := Document{CurrentSession: id, Messages: messages, SessionMeta: meta}
	return writeJSONFile(s.path(id), doc)
}

func (s *JSONStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, documentSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, documentSuffix))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

func (s *JSONStore) Load(id string) (Document, error) {
	if err := validateID(id); err != nil {
		return Document{}, &LoadError{ID: id, Err: err}
	}
	doc, err := s.readDocument(id)
	if err != nil {
		return Document{}, &LoadError{ID: id, Err: err}
	}
	return doc, nil
}

func (s *JSONStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return &DeleteError{ID: id, Err: err}
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &DeleteError{ID: id, Err: err}
	}
	return nil
}

func (s *JSONStore) Exists(id string) bool {
	if validateID(id) != nil {
		return false
	}
	info, err := os.Stat(s.path(id))
	return err == nil && !info.IsDir()
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) readDocument(id string) (Document, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, ErrSessionNotFound
		}
		return Document{}, fmt.Errorf("read %s: %w", s.path(id), err)
	}
	return decodeDocument(id, data)
}

// decodeDocument 解析并校验文档；只要求实际持久化的字段
// decodeDocument parses and validates a document, requiring only persisted fields.
func decodeDocument(id string, data []byte) (Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("parse document: %w", err)
	}
	if raw.CurrentSession == nil {
		return Document{}, fmt.Errorf("missing field %q", "current_session")
	}
	if raw.Messages == nil {
		return Document{}, fmt.Errorf("missing field %q", "messages")
	}
	for i, msg := range *raw.Messages {
		if !msg.Role.Valid() {
			return Document{}, fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}
	// 文件名才是权威 ID / the file name is the authoritative id
	return Document{
		CurrentSession: id,
		Messages:       *raw.Messages,
		SessionMeta:    raw.SessionMeta,
	}, nil
}

// writeJSONFile 原子写入：先写临时文件再 rename
// writeJSONFile writes atomically via a temp file and rename.
func writeJSONFile(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
