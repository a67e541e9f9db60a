// Package persist is the Persistence Manager of spec §4.7: a per-module
// side-data file holding enabled feature names and persistent
// subscriptions, distinct from the module's main data file owned by
// internal/datamgr.
package persist

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/confd-io/confd/internal/protoerr"
)

// Subscription is one persistent module-change interest, the only kind PM
// stores durably (spec §3 "module-change subscriptions are persistent").
type Subscription struct {
	DestinationAddress string
	DestinationID       uint32
	XPath               string
}

func (s Subscription) key() string {
	return fmt.Sprintf("%s\x00%d", s.DestinationAddress, s.DestinationID)
}

// sideData is the in-memory shape of one module's side-data file.
type sideData struct {
	Features      map[string]bool
	Subscriptions map[string]Subscription // keyed by Subscription.key()
}

func newSideData() *sideData {
	return &sideData{Features: map[string]bool{}, Subscriptions: map[string]Subscription{}}
}

// Manager reads and writes side-data files under dir, one per module,
// serializing access to each file with a whole-file flock (exclusive for
// writes, shared for reads) held for the duration of a read-modify-write
// (spec §4.7).
type Manager struct {
	dir string
	mu  sync.Mutex // serializes Go-level access; flock below guards cross-process access
}

func NewManager(dir string) *Manager { return &Manager{dir: dir} }

func (m *Manager) path(module string) string {
	return filepath.Join(m.dir, module+".persist.xml")
}

// withFile opens module's side-data file (creating it if absent, per the
// "missing on write = create with mode 0664" contract), takes an
// exclusive flock, runs fn against the decoded contents, and if fn
// modified anything, re-encodes and fdatasyncs before releasing the lock.
func (m *Manager) withFile(module string, write bool, fn func(*sideData) (changed bool, err error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	flags := os.O_RDONLY
	if write {
		flags = os.O_RDWR | os.O_CREATE
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return protoerr.Newf(protoerr.IO, err.Error())
		}
	}
	f, err := os.OpenFile(m.path(module), flags, 0o664)
	if os.IsNotExist(err) && !write {
		_, ferr := fn(newSideData())
		return ferr
	}
	if err != nil {
		return protoerr.Newf(protoerr.IO, err.Error())
	}
	defer f.Close()

	lockType := unix.LOCK_SH
	if write {
		lockType = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), lockType); err != nil {
		return protoerr.Newf(protoerr.IO, "flock: "+err.Error())
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	sd := newSideData()
	if info, statErr := f.Stat(); statErr == nil && info.Size() > 0 {
		buf := make([]byte, info.Size())
		if _, err := f.ReadAt(buf, 0); err != nil {
			return protoerr.Newf(protoerr.IO, err.Error())
		}
		if err := decodeSideData(buf, sd); err != nil {
			return protoerr.Newf(protoerr.IO, err.Error())
		}
	}

	changed, err := fn(sd)
	if err != nil {
		return err
	}
	if !write || !changed {
		return nil
	}

	out, err := encodeSideData(sd)
	if err != nil {
		return protoerr.Newf(protoerr.IO, err.Error())
	}
	if err := f.Truncate(0); err != nil {
		return protoerr.Newf(protoerr.IO, err.Error())
	}
	if _, err := f.WriteAt(out, 0); err != nil {
		return protoerr.Newf(protoerr.IO, err.Error())
	}
	return f.Sync()
}

// EnableFeature is idempotent: re-enabling an already-enabled feature
// returns OK, not an error (original_source/persistence_manager.c).
func (m *Manager) EnableFeature(module, feature string) error {
	return m.withFile(module, true, func(sd *sideData) (bool, error) {
		if sd.Features[feature] {
			return false, nil
		}
		sd.Features[feature] = true
		return true, nil
	})
}

func (m *Manager) DisableFeature(module, feature string) error {
	return m.withFile(module, true, func(sd *sideData) (bool, error) {
		if !sd.Features[feature] {
			return false, nil
		}
		delete(sd.Features, feature)
		return true, nil
	})
}

// GetFeatures returns module's enabled feature names; a missing file
// reads as an empty list.
func (m *Manager) GetFeatures(module string) ([]string, error) {
	var out []string
	err := m.withFile(module, false, func(sd *sideData) (bool, error) {
		for f := range sd.Features {
			out = append(out, f)
		}
		sort.Strings(out)
		return false, nil
	})
	return out, err
}

// AddSubscription is idempotent on the (destination address, id) key.
func (m *Manager) AddSubscription(module string, sub Subscription) error {
	return m.withFile(module, true, func(sd *sideData) (bool, error) {
		if existing, ok := sd.Subscriptions[sub.key()]; ok && existing == sub {
			return false, nil
		}
		sd.Subscriptions[sub.key()] = sub
		return true, nil
	})
}

func (m *Manager) RemoveSubscription(module, destinationAddress string, destinationID uint32) error {
	key := Subscription{DestinationAddress: destinationAddress, DestinationID: destinationID}.key()
	return m.withFile(module, true, func(sd *sideData) (bool, error) {
		if _, ok := sd.Subscriptions[key]; !ok {
			return false, nil
		}
		delete(sd.Subscriptions, key)
		return true, nil
	})
}

// RemoveSubscriptionsForDestination bulk-removes every subscription from
// address in module, for destination-loss cleanup (spec §4.7/§8 scenario 6).
func (m *Manager) RemoveSubscriptionsForDestination(module, address string) error {
	return m.withFile(module, true, func(sd *sideData) (bool, error) {
		changed := false
		for key, sub := range sd.Subscriptions {
			if sub.DestinationAddress == address {
				delete(sd.Subscriptions, key)
				changed = true
			}
		}
		return changed, nil
	})
}

// GetSubscriptions returns module's persistent subscriptions in
// document order (here: the order the underlying map iterates, stabilized
// by sorting on the key for determinism across runs).
func (m *Manager) GetSubscriptions(module string) ([]Subscription, error) {
	var out []Subscription
	err := m.withFile(module, false, func(sd *sideData) (bool, error) {
		for _, s := range sd.Subscriptions {
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].key() < out[j].key()
		})
		return false, nil
	})
	return out, err
}

func encodeSideData(sd *sideData) ([]byte, error) {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	enc.Indent("", "  ")
	if err := enc.Encode(toWire(sd)); err != nil {
		return nil, err
	}
	return []byte(b.String() + "\n"), nil
}

func decodeSideData(data []byte, sd *sideData) error {
	var w wireSideData
	if err := xml.Unmarshal(data, &w); err != nil {
		return err
	}
	for _, f := range w.Features {
		sd.Features[f.Name] = true
	}
	for _, s := range w.Subscriptions {
		sub := Subscription{DestinationAddress: s.DestinationAddress, DestinationID: s.DestinationID, XPath: s.XPath}
		sd.Subscriptions[sub.key()] = sub
	}
	return nil
}

type wireSideData struct {
	XMLName       struct{}       `xml:"persist"`
	Features      []wireFeature  `xml:"enabled-features>feature-name"`
	Subscriptions []wireSub      `xml:"subscriptions>subscription"`
}

type wireFeature struct {
	Name string `xml:",chardata"`
}

type wireSub struct {
	DestinationAddress string `xml:"destination-address,attr"`
	DestinationID       uint32 `xml:"destination-id,attr"`
	XPath               string `xml:"xpath,attr,omitempty"`
}

func toWire(sd *sideData) wireSideData {
	var w wireSideData
	names := make([]string, 0, len(sd.Features))
	for f := range sd.Features {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, n := range names {
		w.Features = append(w.Features, wireFeature{Name: n})
	}
	subs := make([]Subscription, 0, len(sd.Subscriptions))
	for _, s := range sd.Subscriptions {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].key() < subs[j].key()
	})
	for _, s := range subs {
		w.Subscriptions = append(w.Subscriptions, wireSub{DestinationAddress: s.DestinationAddress, DestinationID: s.DestinationID, XPath: s.XPath})
	}
	return w
}
