// Package datamgr is the Data Manager of spec §4.5: per-session working
// copies of module data trees, the operation log that backs discard and
// commit replay, per-module/datastore locking, and the commit pipeline.
package datamgr

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/confd-io/confd/internal/protoerr"
	"github.com/confd-io/confd/internal/wire"
	"github.com/confd-io/confd/internal/yang"
)

// ChangeNotifier receives a post-commit event per touched module. The
// Notification Processor (internal/notify) implements this; datamgr never
// imports internal/notify directly, keeping the commit pipeline ignorant
// of how (or whether) subscribers are informed.
type ChangeNotifier interface {
	NotifyModuleChange(module string)
}

// editKind distinguishes the three operation-log entry shapes.
type editKind uint8

const (
	editSet editKind = iota
	editDelete
	editMove
)

type editRecord struct {
	kind      editKind
	xpath     string
	value     *yang.Value
	opts      yang.EditOptions
	direction wire.Direction
}

type workingCopy struct {
	tree     *yang.Tree
	modified bool
	loadedAt time.Time
}

type sessionState struct {
	datastore   wire.Datastore
	copies      map[string]*workingCopy
	log         []editRecord
	moduleLocks map[string]bool
	dsLocked    bool
}

// Manager implements the Data Manager component.
type Manager struct {
	mu sync.Mutex

	modules  map[string]*yang.Module
	store    *fileStore
	notifier ChangeNotifier

	sessions map[uint32]*sessionState

	commitLocks  map[string]*sync.Mutex // per-module serialization during commit
	moduleLockBy map[string]uint32      // module -> session id holding lock-module
	dsLockBy     uint32                 // session id holding lock-datastore, 0 = free
}

// NewManager builds a Data Manager over modules (pre-loaded schemas,
// keyed by name) persisting data files under dataDir.
func NewManager(modules map[string]*yang.Module, dataDir string, notifier ChangeNotifier) *Manager {
	return &Manager{
		modules:      modules,
		store:        newFileStore(dataDir),
		notifier:     notifier,
		sessions:     make(map[uint32]*sessionState),
		commitLocks:  make(map[string]*sync.Mutex),
		moduleLockBy: make(map[string]uint32),
	}
}

// RegisterModule adds or replaces an installed module's schema, per
// module-install's install=true path.
func (m *Manager) RegisterModule(schema *yang.Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[schema.Name] = schema
}

// UnregisterModule removes a module from the installed set, per
// module-install's install=false path. Existing sessions keep any
// working copy they already loaded; new lookups fail with UnknownModel.
func (m *Manager) UnregisterModule(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.modules, name)
}

// Modules returns the currently installed schemas, for list-schemas.
func (m *Manager) Modules() []*yang.Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*yang.Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	return out
}

// Module looks up one installed schema by name, for get-schema.
func (m *Manager) Module(name string) (*yang.Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[name]
	return mod, ok
}

// DataFilePath returns module's backing data file path, for Access
// Control's check_node_permissions (spec §4.9).
func (m *Manager) DataFilePath(module string) string {
	return m.store.Path(module)
}

// EnableRunning implements the running-datastore enablement walk of spec
// §4.5.4: xpath's schema node becomes visible to running-scoped sessions,
// along with every ancestor. The Connection Manager calls this when a
// module-change subscription names an xpath, since that subscription is
// the subscriber declaring the subtree it maintains.
func (m *Manager) EnableRunning(xpath string) error {
	moduleName, err := moduleOf(xpath)
	if err != nil {
		return err
	}
	mod, ok := m.Module(moduleName)
	if !ok {
		return protoerr.Newf(protoerr.UnknownModel, "unknown module: "+moduleName)
	}
	return yang.EnableXPath(mod, xpath)
}

func (m *Manager) commitLockFor(module string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.commitLocks[module]
	if !ok {
		l = &sync.Mutex{}
		m.commitLocks[module] = l
	}
	return l
}

// StartSession registers session bookkeeping for a newly created session;
// called from the Connection Manager's session-start handler.
func (m *Manager) StartSession(sessionID uint32, datastore wire.Datastore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &sessionState{
		datastore:   datastore,
		copies:      make(map[string]*workingCopy),
		moduleLocks: make(map[string]bool),
	}
}

// StopSession releases every lock the session holds and drops its working
// copies. Registered as a session.Manager destroy callback.
func (m *Manager) StopSession(sessionID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	for module, held := range st.moduleLocks {
		if held && m.moduleLockBy[module] == sessionID {
			delete(m.moduleLockBy, module)
		}
	}
	if st.dsLocked && m.dsLockBy == sessionID {
		m.dsLockBy = 0
	}
	delete(m.sessions, sessionID)
}

func (m *Manager) session(sessionID uint32) (*sessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	return st, nil
}

// getDataInfo returns the session's working copy for module, loading it
// from disk on first access (spec §4.5.1). Must be called with m.mu held.
func (m *Manager) getDataInfo(st *sessionState, module string) (*workingCopy, error) {
	if wc, ok := st.copies[module]; ok {
		return wc, nil
	}
	schema, ok := m.modules[module]
	if !ok {
		return nil, protoerr.Newf(protoerr.UnknownModel, "unknown module: "+module)
	}
	data, found, err := m.store.Load(module)
	if err != nil {
		return nil, protoerr.Newf(protoerr.IO, err.Error())
	}
	var tree *yang.Tree
	if !found {
		tree = yang.NewTree(schema)
	} else {
		tree, err = yang.Unmarshal(schema, data)
		if err != nil {
			return nil, protoerr.Newf(protoerr.IO, "parse "+module+": "+err.Error())
		}
	}
	wc := &workingCopy{tree: tree, loadedAt: time.Now()}
	st.copies[module] = wc
	return wc, nil
}

// ModuleOf extracts the leading module name from an absolute xpath
// ("/module:rest..."), for callers outside this package (Access Control)
// that need to map an xpath to its backing module without duplicating
// the parse.
func ModuleOf(xpath string) (string, error) {
	return moduleOf(xpath)
}

func moduleOf(xpath string) (string, error) {
	// xpath is always "/module:rest...", validated by yang.Resolve/Set/Delete
	// downstream; here we only need the module segment to pick a working copy.
	if len(xpath) < 2 || xpath[0] != '/' {
		return "", protoerr.Newf(protoerr.BadElement, "malformed xpath")
	}
	rest := xpath[1:]
	for i, c := range rest {
		if c == ':' {
			return rest[:i], nil
		}
		if c == '/' {
			break
		}
	}
	return "", protoerr.Newf(protoerr.UnknownModel, "xpath missing module prefix")
}

// GetValue evaluates xpath against the session's working copy, applying
// the running-datastore enablement mask when the session is scoped to the
// running datastore (spec §4.5.1/§4.5.4).
func (m *Manager) GetValue(sessionID uint32, xpath string) (*yang.Value, error) {
	values, err := m.GetValues(sessionID, xpath)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, protoerr.Newf(protoerr.NotFound, "no node matches xpath").WithPath(xpath)
	}
	return &values[0], nil
}

// GetValues evaluates xpath and returns every matching leaf value.
func (m *Manager) GetValues(sessionID uint32, xpath string) ([]yang.Value, error) {
	module, err := moduleOf(xpath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	wc, err := m.getDataInfo(st, module)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	tree := wc.tree
	datastore := st.datastore
	m.mu.Unlock()

	nodes, err := yang.Resolve(tree, xpath)
	if err != nil {
		return nil, err
	}

	var out []yang.Value
	for _, n := range nodes {
		if n.Value == nil {
			continue
		}
		if datastore == wire.DatastoreRunning {
			ancestors := ancestorSchemaPaths(tree.Module.Name, n)
			if !tree.Module.VisibleInRunning(ancestors, yang.SchemaPath(tree.Module.Name, n)) {
				continue
			}
		}
		v := *n.Value
		v.XPath = yang.CanonicalXPath(tree.Module.Name, n)
		out = append(out, v)
	}
	return out, nil
}

// ancestorSchemaPaths walks node's ancestors as schema paths (no list-key
// predicates), the form running-datastore enablement is recorded under
// (spec §4.5.4): enabling one list entry's schema path enables every
// entry of that list, since enablement is a schema property, not a
// per-instance one.
func ancestorSchemaPaths(moduleName string, node *yang.Node) []string {
	var out []string
	for n := node.Parent; n != nil && n.Name != ""; n = n.Parent {
		out = append(out, yang.SchemaPath(moduleName, n))
	}
	return out
}

// GetValuesIter is GetValues windowed by (offset, limit), for streaming
// large result sets (spec §4.5.1).
func (m *Manager) GetValuesIter(sessionID uint32, xpath string, offset, limit int) ([]yang.Value, error) {
	all, err := m.GetValues(sessionID, xpath)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// applyEdit is the shared body of SetItem/DeleteItem/MoveItem: look up the
// session and its working copy, apply the edit, and append to the
// operation log on success.
func (m *Manager) applyEdit(sessionID uint32, xpath string, fn func(tree *yang.Tree) error, rec editRecord) error {
	module, err := moduleOf(xpath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	wc, err := m.getDataInfo(st, module)
	if err != nil {
		return err
	}
	if err := fn(wc.tree); err != nil {
		return err
	}
	wc.modified = true
	st.log = append(st.log, rec)
	return nil
}

func (m *Manager) SetItem(sessionID uint32, xpath string, value *yang.Value, opts yang.EditOptions) error {
	return m.applyEdit(sessionID, xpath,
		func(tree *yang.Tree) error { _, err := yang.Set(tree, xpath, value, opts); return err },
		editRecord{kind: editSet, xpath: xpath, value: value, opts: opts})
}

func (m *Manager) DeleteItem(sessionID uint32, xpath string, opts yang.EditOptions) error {
	return m.applyEdit(sessionID, xpath,
		func(tree *yang.Tree) error { return yang.Delete(tree, xpath, opts) },
		editRecord{kind: editDelete, xpath: xpath, opts: opts})
}

func (m *Manager) MoveItem(sessionID uint32, xpath string, direction wire.Direction) error {
	return m.applyEdit(sessionID, xpath,
		func(tree *yang.Tree) error {
			if direction == wire.DirectionUp {
				return yang.MoveUp(tree, xpath)
			}
			return yang.MoveDown(tree, xpath)
		},
		editRecord{kind: editMove, xpath: xpath, direction: direction})
}

// Validate runs schema validation over every module the session has
// touched, without committing.
func (m *Manager) Validate(sessionID uint32) ([]yang.ValidationError, error) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	var errs []yang.ValidationError
	for _, wc := range st.copies {
		errs = append(errs, yang.Validate(wc.tree)...)
	}
	m.mu.Unlock()
	return errs, nil
}

// DiscardChanges reloads every touched module fresh from disk and clears
// the operation log, per spec's discard-changes contract.
func (m *Manager) DiscardChanges(sessionID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	st.copies = make(map[string]*workingCopy)
	st.log = nil
	return nil
}

// LockModule/UnlockModule implement per-module exclusive locks; a held
// lock blocks any other session's lock-module or lock-datastore request
// for that module (spec §8 "Lock exclusivity").
func (m *Manager) LockModule(sessionID uint32, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	if m.dsLockBy != 0 && m.dsLockBy != sessionID {
		return protoerr.Newf(protoerr.Locked, "datastore is locked by another session")
	}
	if holder, locked := m.moduleLockBy[module]; locked && holder != sessionID {
		return protoerr.Newf(protoerr.Locked, "module is locked by another session")
	}
	m.moduleLockBy[module] = sessionID
	st.moduleLocks[module] = true
	return nil
}

func (m *Manager) UnlockModule(sessionID uint32, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	if holder, locked := m.moduleLockBy[module]; !locked || holder != sessionID {
		return protoerr.Newf(protoerr.InvalidArg, "module is not locked by this session")
	}
	delete(m.moduleLockBy, module)
	delete(st.moduleLocks, module)
	return nil
}

// LockDatastore/UnlockDatastore implement the whole-datastore lock; it
// conflicts with any module lock held by a different session and vice
// versa (spec §8 scenario 3).
func (m *Manager) LockDatastore(sessionID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	if m.dsLockBy != 0 && m.dsLockBy != sessionID {
		return protoerr.Newf(protoerr.Locked, "datastore is locked by another session")
	}
	for module, holder := range m.moduleLockBy {
		if holder != sessionID {
			return protoerr.Newf(protoerr.Locked, "module "+module+" is locked by another session")
		}
	}
	m.dsLockBy = sessionID
	st.dsLocked = true
	return nil
}

func (m *Manager) UnlockDatastore(sessionID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	if m.dsLockBy != sessionID {
		return protoerr.Newf(protoerr.InvalidArg, "datastore is not locked by this session")
	}
	m.dsLockBy = 0
	st.dsLocked = false
	return nil
}

// Commit runs the pipeline of spec §4.5/§7: validate the session's
// touched modules, acquire each module's commit lock, replay the
// session's operation log onto a freshly loaded tree, validate again,
// persist atomically, and finally notify subscribers. A commit with no
// edits since the last commit/discard is a no-op (spec §8 idempotence).
func (m *Manager) Commit(sessionID uint32) ([]yang.ValidationError, error) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	if len(st.log) == 0 {
		m.mu.Unlock()
		return nil, nil
	}
	var sessionErrs []yang.ValidationError
	for _, wc := range st.copies {
		sessionErrs = append(sessionErrs, yang.Validate(wc.tree)...)
	}
	if len(sessionErrs) > 0 {
		m.mu.Unlock()
		return sessionErrs, protoerr.Newf(protoerr.ValidationFailed, "session validation failed")
	}
	touched := make(map[string]bool)
	for module := range st.copies {
		touched[module] = true
	}
	log := st.log
	m.mu.Unlock()

	// Acquire commit locks for every touched module in a stable order to
	// avoid deadlocking against a concurrent commit over an overlapping
	// module set.
	modules := make([]string, 0, len(touched))
	for module := range touched {
		modules = append(modules, module)
	}
	sortStrings(modules)
	for _, module := range modules {
		m.commitLockFor(module).Lock()
		defer m.commitLockFor(module).Unlock()
	}

	// Build fresh commit-session trees per touched module and replay. Each
	// module's file load is independent of every other's, so they run
	// concurrently; the per-module commit lock taken above already rules
	// out a second goroutine touching the same module's file.
	loaded := make([]*yang.Tree, len(modules))
	var g errgroup.Group
	for i, module := range modules {
		i, module := i, module
		g.Go(func() error {
			schema := m.modules[module]
			data, found, err := m.store.Load(module)
			if err != nil {
				return protoerr.Newf(protoerr.IO, err.Error())
			}
			if !found {
				loaded[i] = yang.NewTree(schema)
				return nil
			}
			tree, err := yang.Unmarshal(schema, data)
			if err != nil {
				return protoerr.Newf(protoerr.IO, err.Error())
			}
			loaded[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	freshTrees := make(map[string]*yang.Tree, len(modules))
	for i, module := range modules {
		freshTrees[module] = loaded[i]
	}

	for _, rec := range log {
		module, err := moduleOf(rec.xpath)
		if err != nil {
			return nil, err
		}
		tree := freshTrees[module]
		switch rec.kind {
		case editSet:
			if _, err := yang.Set(tree, rec.xpath, rec.value, rec.opts); err != nil {
				return nil, protoerr.Newf(protoerr.CommitFailed, err.Error())
			}
		case editDelete:
			if err := yang.Delete(tree, rec.xpath, rec.opts); err != nil {
				return nil, protoerr.Newf(protoerr.CommitFailed, err.Error())
			}
		case editMove:
			var err error
			if rec.direction == wire.DirectionUp {
				err = yang.MoveUp(tree, rec.xpath)
			} else {
				err = yang.MoveDown(tree, rec.xpath)
			}
			if err != nil {
				return nil, protoerr.Newf(protoerr.CommitFailed, err.Error())
			}
		}
	}

	var allErrs []yang.ValidationError
	for _, module := range modules {
		allErrs = append(allErrs, yang.Validate(freshTrees[module])...)
	}
	if len(allErrs) > 0 {
		return allErrs, protoerr.Newf(protoerr.ValidationFailed, "commit validation failed")
	}

	var persistGroup errgroup.Group
	for _, module := range modules {
		module := module
		persistGroup.Go(func() error {
			data, err := yang.Marshal(freshTrees[module])
			if err != nil {
				return protoerr.Newf(protoerr.IO, err.Error())
			}
			if err := m.store.SaveAtomic(module, data); err != nil {
				return err
			}
			return nil
		})
	}
	if err := persistGroup.Wait(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	st.log = nil
	st.copies = make(map[string]*workingCopy)
	m.mu.Unlock()

	if m.notifier != nil {
		for _, module := range modules {
			m.notifier.NotifyModuleChange(module)
		}
	}
	return nil, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
