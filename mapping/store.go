package mapping

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/crypto/blake2b"
)

const (
	prefixAddress = 'a'
	prefixUnit    = 'u'
)

// Entry is a translated guest address together with the unit that exports it.
type Entry struct {
	Address uint64 `json:"address"`
	Unit    string `json:"unit"`
	Export  string `json:"export"`
}

// Store records which guest addresses of one program were exported by
// closed units. It implements gen.Mapping; an empty path keeps the store
// in memory.
type Store struct {
	db      *leveldb.DB
	program [blake2b.Size256]byte

	mu    sync.RWMutex
	known map[uint64]bool
}

var _ gen.Mapping = (*Store)(nil)

// ProgramHash identifies a program blob in the store.
func ProgramHash(program []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(program)
}

func Open(path string, program []byte) (*Store, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping at %s: %w", path, err)
	}

	s := &Store{db: db, program: ProgramHash(program), known: make(map[uint64]bool)}
	entries, err := s.List()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, e := range entries {
		s.known[e.Address] = true
	}
	log.Debug(log.MappingMonitoring, "mapping opened", "path", path, "program", fmt.Sprintf("%x", s.program[:8]), "addresses", len(entries))
	return s, nil
}

func (s *Store) key(kind byte, suffix []byte) []byte {
	key := make([]byte, 0, 1+len(s.program)+len(suffix))
	key = append(key, kind)
	key = append(key, s.program[:]...)
	return append(key, suffix...)
}

func (s *Store) addressKey(address uint64) []byte {
	return s.key(prefixAddress, binary.BigEndian.AppendUint64(nil, address))
}

// Contains reports whether address was exported by an earlier unit.
func (s *Store) Contains(address uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known[address]
}

// Lookup returns the entry of address. Returns (Entry{}, false, nil) if
// the address is not known.
func (s *Store) Lookup(address uint64) (Entry, bool, error) {
	data, err := s.db.Get(s.addressKey(address), nil)
	if err == leveldb.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("Lookup 0x%x: %w", address, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("Lookup 0x%x: %w", address, err)
	}
	return e, true, nil
}

// Define records the exports of a closed unit. Redefining an address with
// a different unit is rejected and leaves the store unchanged.
func (s *Store) Define(unit string, exports []gen.Export) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, export := range exports {
		old, found, err := s.Lookup(export.Address)
		if err != nil {
			return err
		}
		if found && old.Unit != unit {
			return fmt.Errorf("address 0x%x defined by %s and %s: %w", export.Address, old.Unit, unit, transerrors.ErrPMappingConflict)
		}
		value, err := json.Marshal(Entry{Address: export.Address, Unit: unit, Export: export.Name})
		if err != nil {
			return err
		}
		batch.Put(s.addressKey(export.Address), value)
	}
	batch.Put(s.key(prefixUnit, []byte(unit)), binary.BigEndian.AppendUint64(nil, uint64(len(exports))))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("Define %s: %w", unit, err)
	}
	for _, export := range exports {
		s.known[export.Address] = true
	}
	log.Debug(log.MappingMonitoring, "unit defined", "unit", unit, "exports", len(exports))
	return nil
}

// List returns all entries of the program sorted by address.
func (s *Store) List() ([]Entry, error) {
	iter := s.db.NewIterator(util.BytesPrefix(s.key(prefixAddress, nil)), nil)
	defer iter.Release()

	var entries []Entry
	for iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("List %x: %w", iter.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return entries, nil
}

// Units returns the names of all units recorded for the program.
func (s *Store) Units() ([]string, error) {
	prefix := s.key(prefixUnit, nil)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var units []string
	for iter.Next() {
		units = append(units, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("Units: %w", err)
	}
	return units, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
