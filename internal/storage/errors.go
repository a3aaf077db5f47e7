package storage

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is wrapped by LoadError when no document exists for the ID.
var ErrSessionNotFound = errors.New("session not found")

// LoadError 会话文档缺失、不可读或格式错误
// LoadError reports a missing, unreadable or malformed session document.
type LoadError struct {
	ID  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load session %s: %v", e.ID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DeleteError 删除会话文档失败
// DeleteError reports a failed removal of a session document.
type DeleteError struct {
	ID  string
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete session %s: %v", e.ID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// StorageDirectoryError 无法创建存储目录
// StorageDirectoryError reports that the backing directory could not be created.
type StorageDirectoryError struct {
	Dir string
	Err error
}

func (e *StorageDirectoryError) Error() string {
	return fmt.Sprintf("create storage dir %s: %v", e.Dir, e.Err)
}

func (e *StorageDirectoryError) Unwrap() error { return e.Err }
