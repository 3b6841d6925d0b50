// Package configstore is the default engine.ConfigStore: a
// directory of YAML files merged into one hierarchical tree, re-read and
// atomically swapped whenever fsnotify reports a change, exposing
// copy-on-write snapshots so concurrent readers never observe a torn
// read.
package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

// Store is a directory-backed engine.ConfigStore.
type Store struct {
	Dir string

	validator *schemaValidator
	tree      atomic.Pointer[engine.Topics]

	mu          sync.Mutex
	subscribers map[string][]func()

	watcher *fsnotify.Watcher
	closeCh chan struct{}
}

// New constructs a Store rooted at dir and performs the initial load.
// dir is watched for subsequent changes once Watch is called.
func New(dir string) (*Store, error) {
	v, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	s := &Store{
		Dir:         dir,
		validator:   v,
		subscribers: make(map[string][]func()),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch starts an fsnotify watch on Dir: every create/write/remove of a
// *.yaml file triggers a reload and notifies every subscriber. Watch is
// idempotent; calling it twice is a no-op after the first call.
func (s *Store) Watch() error {
	if s.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(s.Dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.Dir, err)
	}
	s.watcher = w
	s.closeCh = make(chan struct{})

	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				continue
			}
			s.notifyAll()
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// Close stops the fsnotify watch, if started.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.closeCh)
	return s.watcher.Close()
}

// reload reads every *.yaml/*.yml file in Dir, merges their top-level
// keys into a single tree, validates every "services.<name>" subtree
// against the builtin schema, and atomically swaps the live snapshot.
func (s *Store) reload() error {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return fmt.Errorf("read config dir %s: %w", s.Dir, err)
	}

	merged := make(engine.Topics)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k, v := range doc {
			merged[k] = normalize(v)
		}
	}

	if services, ok := merged["services"].(engine.Topics); ok {
		for name, raw := range services {
			sub, ok := raw.(engine.Topics)
			if !ok {
				continue
			}
			if err := s.validator.validateService(name, sub); err != nil {
				return err
			}
		}
	}

	s.tree.Store(&merged)
	return nil
}

// normalize converts nested map[string]interface{} (what yaml.v3 decodes
// mappings into) to engine.Topics recursively, so LookupTopics/GetChild
// callers get the Topics type the engine package's interface promises.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(engine.Topics, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	default:
		return v
	}
}

// LookupTopics implements engine.ConfigStore.
func (s *Store) LookupTopics(path string) (engine.Topics, error) {
	node, ok := s.lookup(path)
	if !ok {
		return nil, nil
	}
	topics, ok := node.(engine.Topics)
	if !ok {
		return nil, fmt.Errorf("%s is not a Topics subtree", path)
	}
	return topics, nil
}

// GetChild implements engine.ConfigStore.
func (s *Store) GetChild(path, key string) (interface{}, bool) {
	node, ok := s.lookup(path)
	if !ok {
		return nil, false
	}
	topics, ok := node.(engine.Topics)
	if !ok {
		return nil, false
	}
	v, ok := topics[key]
	return v, ok
}

func (s *Store) lookup(path string) (interface{}, bool) {
	tree := s.tree.Load()
	if tree == nil {
		return nil, false
	}
	if path == "" {
		return *tree, true
	}

	var cur interface{} = *tree
	for _, segment := range strings.Split(path, ".") {
		topics, ok := cur.(engine.Topics)
		if !ok {
			return nil, false
		}
		cur, ok = topics[segment]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Subscribe implements engine.ConfigStore: onChange fires whenever any
// config file changes, regardless of whether path's own subtree moved.
// The Scheduler treats every config change as "recompute the ready
// set", so granular subtree diffing isn't needed.
func (s *Store) Subscribe(path string, onChange func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[path] = append(s.subscribers[path], onChange)
	idx := len(s.subscribers[path]) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[path]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}
}

func (s *Store) notifyAll() {
	s.mu.Lock()
	var callbacks []func()
	for _, subs := range s.subscribers {
		for _, cb := range subs {
			if cb != nil {
				callbacks = append(callbacks, cb)
			}
		}
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
