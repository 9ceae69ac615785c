// Package store persists deployed contract addresses, one JSON document per network.
//
// Writes merge into the existing document: setting one contract name never drops or
// alters the other entries. Each write holds an exclusive per-network lock for the whole
// read-modify-write and replaces the file atomically.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/compose-network/farm-deployer/internal/infra/filesystem"
	fsjson "github.com/compose-network/farm-deployer/internal/infra/filesystem/json"
	"github.com/compose-network/farm-deployer/internal/logger"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

const (
	documentSuffix = ".json"
	pendingSuffix  = ".pending.json"
	lockSuffix     = ".lock"
)

// ErrCorruptDocument is returned when a persisted document is not a name -> address mapping.
var ErrCorruptDocument = errors.New("corrupt deployment document")

type (
	// Document maps contract name to deployed address for one network.
	Document map[string]string

	// Pending maps step name to the hash of a submitted but unconfirmed transaction.
	Pending map[string]string

	// Store is the sole writer of the per-network deployment documents.
	Store struct {
		reader filesystem.Reader
		writer filesystem.Writer
		locker Locker
		logger *slog.Logger
	}

	Option func(*Store)
)

// WithLocker replaces the default in-process locker.
func WithLocker(locker Locker) Option {
	return func(s *Store) {
		s.locker = locker
	}
}

// NewStore creates a store over fs. Documents live at the root of fs.
func NewStore(fs billy.Filesystem, opts ...Option) *Store {
	s := &Store{
		reader: fsjson.NewReader(fs),
		writer: fsjson.NewWriter(fs),
		locker: NewMutexLocker(),
		logger: logger.Named("record_store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewFileStore creates a store for the deployments directory dir on disk,
// guarded by lock files so separate processes do not interleave writes.
func NewFileStore(dir string) *Store {
	return NewStore(osfs.New(dir), WithLocker(NewFileLocker(dir)))
}

// Path returns the document path for network, relative to the store root.
func (s *Store) Path(network string) string {
	return network + documentSuffix
}

func (s *Store) pendingPath(network string) string {
	return network + pendingSuffix
}

// Read returns the persisted document for network, or an empty document if none exists yet.
func (s *Store) Read(network string) (Document, error) {
	if err := validateNetwork(network); err != nil {
		return nil, err
	}

	return s.read(network)
}

// Write sets name to address in the network document, keeping every other entry.
func (s *Store) Write(network, name, address string) error {
	if err := validateNetwork(network); err != nil {
		return err
	}
	if name == "" {
		return errors.New("contract name is required")
	}

	unlock, err := s.locker.Lock(network)
	if err != nil {
		return fmt.Errorf("failed to lock '%s' document: %w", network, err)
	}
	defer s.release(network, unlock)

	doc, err := s.read(network)
	if err != nil {
		return err
	}

	previous, existed := doc[name]
	doc[name] = address

	if err := s.writer.WriteJSON(s.Path(network), doc); err != nil {
		return fmt.Errorf("failed to write '%s' document: %w", network, err)
	}

	log := s.logger.With("network", network).With("contract", name).With("address", address)
	if existed && previous != address {
		log.With("previous", previous).Warn("deployment record overwritten")
	} else {
		log.Debug("deployment record written")
	}

	return nil
}

// Pending returns the unconfirmed transactions journaled for network.
func (s *Store) Pending(network string) (Pending, error) {
	if err := validateNetwork(network); err != nil {
		return nil, err
	}

	var pending Pending
	if err := s.reader.ReadJSON(s.pendingPath(network), &pending); err != nil {
		if errors.Is(err, filesystem.ErrNotExist) {
			return Pending{}, nil
		}
		return nil, classifyReadError(err, s.pendingPath(network))
	}
	if pending == nil {
		pending = Pending{}
	}

	return pending, nil
}

// SetPending journals txHash for step before its confirmation is awaited.
func (s *Store) SetPending(network, step, txHash string) error {
	return s.updatePending(network, func(p Pending) {
		p[step] = txHash
	})
}

// ClearPending drops the journal entry for step. The journal file is removed once empty.
func (s *Store) ClearPending(network, step string) error {
	return s.updatePending(network, func(p Pending) {
		delete(p, step)
	})
}

// DiscardPending removes the whole journal for network.
func (s *Store) DiscardPending(network string) error {
	return s.updatePending(network, func(p Pending) {
		clear(p)
	})
}

func (s *Store) updatePending(network string, mutate func(Pending)) error {
	if err := validateNetwork(network); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(network)
	if err != nil {
		return fmt.Errorf("failed to lock '%s' journal: %w", network, err)
	}
	defer s.release(network, unlock)

	pending, err := s.Pending(network)
	if err != nil {
		return err
	}
	updated := maps.Clone(pending)
	mutate(updated)

	if len(updated) == 0 {
		return s.writer.Remove(s.pendingPath(network))
	}

	if err := s.writer.WriteJSON(s.pendingPath(network), updated); err != nil {
		return fmt.Errorf("failed to write '%s' journal: %w", network, err)
	}

	return nil
}

func (s *Store) read(network string) (Document, error) {
	var doc Document
	if err := s.reader.ReadJSON(s.Path(network), &doc); err != nil {
		if errors.Is(err, filesystem.ErrNotExist) {
			return Document{}, nil
		}
		return nil, classifyReadError(err, s.Path(network))
	}
	if doc == nil {
		doc = Document{}
	}

	return doc, nil
}

func (s *Store) release(network string, unlock func() error) {
	if err := unlock(); err != nil {
		s.logger.With("network", network).With("err", err.Error()).Warn("failed to release lock")
	}
}

func classifyReadError(err error, path string) error {
	if errors.Is(err, filesystem.ErrDecode) {
		return fmt.Errorf("%w: '%s': %w", ErrCorruptDocument, path, err)
	}

	return fmt.Errorf("failed to read '%s': %w", path, err)
}

func validateNetwork(network string) error {
	if network == "" {
		return errors.New("network name is required")
	}

	return nil
}
