package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Locker grants exclusive access to one network's persisted files.
type Locker interface {
	Lock(network string) (unlock func() error, err error)
}

// FileLocker uses advisory lock files next to the documents, which also excludes other processes.
type FileLocker struct {
	dir string
}

func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{dir: dir}
}

func (l *FileLocker) Lock(network string) (func() error, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(l.dir, network+lockSuffix))
	if err := fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire %s: %w", fileLock.Path(), err)
	}

	return fileLock.Unlock, nil
}

// MutexLocker serialises access within the current process only.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MutexLocker) Lock(network string) (func() error, error) {
	l.mu.Lock()
	lock, ok := l.locks[network]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[network] = lock
	}
	l.mu.Unlock()

	lock.Lock()

	return func() error {
		lock.Unlock()
		return nil
	}, nil
}
