package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// Duration parses human-readable durations ("30s", "5m") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Profile describes how to launch one test worker: the binary, its arguments
// and environment, and the runtime the target assembly expects. Profiles can
// extend other profiles to share common launch settings.
type Profile struct {
	ID                string            `yaml:"id"`
	Extends           []string          `yaml:"extends,omitempty"`
	Binary            string            `yaml:"binary,omitempty"`
	Args              []string          `yaml:"args,omitempty"`
	Env               map[string]string `yaml:"env,omitempty"`
	RuntimeVersion    string            `yaml:"runtime_version,omitempty"`
	SupportAssemblies []string          `yaml:"support_assemblies,omitempty"`
	ConnectTimeout    *Duration         `yaml:"connect_timeout,omitempty"`
}

// profileFile is the on-disk shape of a profile config.
type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Registry manages worker launch profiles loaded from a config file.
type Registry struct {
	config   Config
	profiles map[string]Profile
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log               log.Logger
	ProfileConfigFile string
	DefaultTimeout    time.Duration
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.ProfileConfigFile == "" {
		return nil, fmt.Errorf("profile config file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadProfiles(cfg.ProfileConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(profiles)", len(r.profiles))

	return r, nil
}

// loadProfiles loads the profile config and resolves profile extension
func (r *Registry) loadProfiles(cfgPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := r.validateExtension(file); err != nil {
		return fmt.Errorf("failed to resolve profile extension: %w", err)
	}

	profiles, err := r.resolveProfiles(file)
	if err != nil {
		return fmt.Errorf("failed to resolve profiles: %w", err)
	}

	r.profiles = profiles

	return nil
}

// validateExtension checks profile extension resolution
func (r *Registry) validateExtension(file *profileFile) error {
	profileMap := make(map[string]Profile)
	for _, p := range file.Profiles {
		if p.ID == "" {
			return fmt.Errorf("profile without an id")
		}
		if _, exists := profileMap[p.ID]; exists {
			return fmt.Errorf("duplicate profile id %s", p.ID)
		}
		profileMap[p.ID] = p
	}

	// Check for circular extension before resolving
	for _, p := range file.Profiles {
		if err := r.checkCircularExtension(p.ID, p.Extends, profileMap, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular extension detected: %w", err)
		}
	}

	return nil
}

// checkCircularExtension detects circular dependencies in profile extension
func (r *Registry) checkCircularExtension(currentID string, extends []string, profileMap map[string]Profile, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular extension detected at profile %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID) // Clean up after checking this branch

	for _, parentID := range extends {
		parent, exists := profileMap[parentID]
		if !exists {
			return fmt.Errorf("profile %s extends non-existent profile %s", currentID, parentID)
		}

		if err := r.checkCircularExtension(parentID, parent.Extends, profileMap, visited); err != nil {
			return err
		}
	}

	return nil
}

// resolveProfiles folds extended profiles into each profile and fills in
// registry defaults. Extension is transitive: parents are fully resolved
// before they are merged, so a leaf -> mid -> base chain sees base's settings
// too. A profile's own settings win over inherited ones.
func (r *Registry) resolveProfiles(file *profileFile) (map[string]Profile, error) {
	byID := make(map[string]Profile, len(file.Profiles))
	for _, p := range file.Profiles {
		byID[p.ID] = p
	}

	// Safe to recurse without cycle tracking: validateExtension already
	// rejected circular chains.
	memo := make(map[string]Profile, len(file.Profiles))
	var resolve func(id string) Profile
	resolve = func(id string) Profile {
		if p, ok := memo[id]; ok {
			return p
		}
		merged := byID[id]
		for _, parentID := range merged.Extends {
			parent := resolve(parentID)
			if merged.Binary == "" {
				merged.Binary = parent.Binary
			}
			if merged.RuntimeVersion == "" {
				merged.RuntimeVersion = parent.RuntimeVersion
			}
			if merged.ConnectTimeout == nil {
				merged.ConnectTimeout = parent.ConnectTimeout
			}
			merged.Args = append(append([]string(nil), parent.Args...), merged.Args...)
			merged.SupportAssemblies = append(append([]string(nil), parent.SupportAssemblies...), merged.SupportAssemblies...)
			if len(parent.Env) > 0 {
				env := make(map[string]string, len(parent.Env)+len(merged.Env))
				for k, v := range parent.Env {
					env[k] = v
				}
				for k, v := range merged.Env {
					env[k] = v
				}
				merged.Env = env
			}
		}
		memo[id] = merged
		return merged
	}

	resolved := make(map[string]Profile, len(file.Profiles))
	for _, p := range file.Profiles {
		merged := resolve(p.ID)
		if merged.ConnectTimeout == nil && r.config.DefaultTimeout > 0 {
			timeout := Duration(r.config.DefaultTimeout)
			merged.ConnectTimeout = &timeout
		}
		if merged.Binary == "" {
			return nil, fmt.Errorf("profile %s has no binary after extension", merged.ID)
		}
		resolved[merged.ID] = merged
	}

	return resolved, nil
}

// Profiles returns all resolved profiles, ordered by id.
func (r *Registry) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Profile returns the resolved profile with the given id.
func (r *Registry) Profile(id string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown worker profile %q", id)
	}
	return p, nil
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadConfig loads a profile config from a file
func loadConfig(path string) (*profileFile, error) {
	log.Debug("Reading profile config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &file, nil
}
