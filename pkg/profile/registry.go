package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/fsnotify.v1"
	"gopkg.in/yaml.v3"
)

// Registry manages a collection of document profiles.
type Registry interface {
	// Register adds a profile to the registry
	Register(p *Profile) error

	// Unregister removes a profile from the registry
	Unregister(profileID string) error

	// Get returns a profile by its id
	Get(profileID string) (*Profile, bool)

	// List returns all registered profiles ordered by id
	List() []*Profile

	// Reload reloads all profiles from the configured directory
	Reload() error

	// Watch starts watching the profile directory for changes
	Watch() error

	// StopWatch stops watching the profile directory
	StopWatch()

	// LoadDirectory loads all profiles from a directory
	LoadDirectory(dir string) error

	// LoadFile loads a single profile file
	LoadFile(path string) error
}

// Event names passed to the change callback.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventRemove = "remove"
)

// DefaultRegistry is the default implementation of the profile Registry.
type DefaultRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	files    map[string]string // path -> profile id
	builtin  bool
	dir      string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func(event string, p *Profile)
	logger   *slog.Logger
}

// NewRegistry creates an empty profile registry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		profiles: make(map[string]*Profile),
		files:    make(map[string]string),
		logger:   slog.Default(),
	}
}

// NewRegistryWithDefaults creates a registry holding the built-in profile. The built-in
// profile survives Reload.
func NewRegistryWithDefaults() *DefaultRegistry {
	r := NewRegistry()
	r.builtin = true
	r.profiles[DefaultID] = Default()
	return r
}

// NewRegistryWithDirectory creates a registry with the built-in profile and loads
// profiles from dir.
func NewRegistryWithDirectory(dir string) (*DefaultRegistry, error) {
	r := NewRegistryWithDefaults()
	if err := r.LoadDirectory(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// SetLogger replaces the logger used for watch errors.
func (r *DefaultRegistry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register adds a profile. A profile id may be registered again only with a different
// version, which replaces the earlier one.
func (r *DefaultRegistry) Register(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if !p.IsCompiled() {
		if err := p.Compile(); err != nil {
			return fmt.Errorf("compiling profile %q: %w", p.ProfileID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.profiles[p.ProfileID]; ok && existing.Version == p.Version {
		return fmt.Errorf("profile %q version %s already registered", p.ProfileID, p.Version)
	}
	r.profiles[p.ProfileID] = p
	return nil
}

// Unregister removes a profile from the registry.
func (r *DefaultRegistry) Unregister(profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[profileID]; !ok {
		return fmt.Errorf("profile %q not found", profileID)
	}
	delete(r.profiles, profileID)
	return nil
}

// Get returns a profile by its id.
func (r *DefaultRegistry) Get(profileID string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[profileID]
	return p, ok
}

// List returns all registered profiles ordered by id.
func (r *DefaultRegistry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ProfileID < profiles[j].ProfileID
	})
	return profiles
}

// Count returns the number of registered profiles.
func (r *DefaultRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// LoadDirectory loads all YAML profile files from a directory. A missing directory is
// not an error.
func (r *DefaultRegistry) LoadDirectory(dir string) error {
	r.dir = dir

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading profiles: %s", strings.Join(loadErrors, "; "))
	}
	return nil
}

// LoadFile loads a single profile file.
func (r *DefaultRegistry) LoadFile(path string) error {
	p, err := readProfile(path)
	if err != nil {
		return err
	}
	if err := r.Register(p); err != nil {
		return fmt.Errorf("registering profile: %w", err)
	}

	r.mu.Lock()
	r.files[path] = p.ProfileID
	r.mu.Unlock()
	return nil
}

func readProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &p, nil
}

// replaceFile loads path again, replacing whatever profile it held before regardless of
// version. On error the previous profile stays registered.
func (r *DefaultRegistry) replaceFile(path string) (*Profile, error) {
	p, err := readProfile(path)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if err := p.Compile(); err != nil {
		return nil, fmt.Errorf("compiling profile %q: %w", p.ProfileID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.files[path]; ok {
		delete(r.profiles, old)
	}
	r.profiles[p.ProfileID] = p
	r.files[path] = p.ProfileID
	return p, nil
}

// Reload clears the registry and reloads the configured directory.
func (r *DefaultRegistry) Reload() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for reload")
	}

	r.Clear()
	return r.LoadDirectory(r.dir)
}

// Clear removes every profile loaded from files. The built-in profile is kept.
func (r *DefaultRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles = make(map[string]*Profile)
	r.files = make(map[string]string)
	if r.builtin {
		r.profiles[DefaultID] = Default()
	}
}

// SetOnChange sets a callback function that is called when profiles change.
func (r *DefaultRegistry) SetOnChange(fn func(event string, p *Profile)) {
	r.onChange = fn
}

// Watch starts watching the profile directory for changes.
func (r *DefaultRegistry) Watch() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	r.watcher = watcher
	r.stopChan = make(chan struct{})

	go r.watchLoop(watcher, r.stopChan)

	if err := watcher.Add(r.dir); err != nil {
		r.watcher.Close()
		return fmt.Errorf("watching directory %s: %w", r.dir, err)
	}
	return nil
}

func (r *DefaultRegistry) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				r.handleFileChange(event.Name, EventCreate)
			case event.Op&fsnotify.Write == fsnotify.Write:
				r.handleFileChange(event.Name, EventModify)
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				r.handleFileRemove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("profile.watch.err", "dir", r.dir, "err", err)
		}
	}
}

func (r *DefaultRegistry) handleFileChange(path, eventType string) {
	p, err := r.replaceFile(path)
	if err != nil {
		r.logger.Warn("profile.load.err", "path", path, "err", err)
		return
	}
	if r.onChange != nil {
		r.onChange(eventType, p)
	}
}

func (r *DefaultRegistry) handleFileRemove(path string) {
	p, ok := r.profileByFile(path)
	r.forget(path)
	if r.onChange != nil && ok {
		r.onChange(EventRemove, p)
	}
}

// forget drops the profile last loaded from path.
func (r *DefaultRegistry) forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.files[path]; ok {
		delete(r.profiles, id)
		delete(r.files, path)
	}
}

func (r *DefaultRegistry) profileByFile(path string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.files[path]
	if !ok {
		return nil, false
	}
	p, ok := r.profiles[id]
	return p, ok
}

// StopWatch stops watching the profile directory.
func (r *DefaultRegistry) StopWatch() {
	if r.stopChan != nil {
		close(r.stopChan)
		r.stopChan = nil
	}
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
