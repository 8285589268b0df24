// Package profile persists the multi-profile RAG connection registry at
// <config-dir>/dify.json. The document is normalized on every load: profile
// "default" is an empty template (writes to it fork a derived profile), every
// profile carries an empty app_schemes["default"], and the legacy flat
// app_api_key field always mirrors the active scheme's key.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/pxh52013145/VNote/internal/config"
)

// registryFileName is the document's file name inside the config dir.
const registryFileName = "dify.json"

// DefaultProfile and DefaultScheme are the reserved template names. Both
// always exist and stay empty.
const (
	DefaultProfile = "default"
	DefaultScheme  = "default"
)

// Sentinel errors. Use errors.Is to classify registry failures.
var (
	ErrNotFound = errors.New("profile: not found")
	ErrInvalid  = errors.New("profile: invalid request")
)

// SchemeConfig is one named app-key scheme inside a profile.
type SchemeConfig struct {
	AppAPIKey string `json:"app_api_key,omitempty"`
}

// Config is the persisted configuration of one profile. The zero value is
// the empty template. AppAPIKey is a legacy mirror of the active scheme's
// key, kept for readers that do not understand schemes.
type Config struct {
	BaseURL             string                  `json:"base_url,omitempty"`
	DatasetID           string                  `json:"dataset_id,omitempty"`
	NoteDatasetID       string                  `json:"note_dataset_id,omitempty"`
	TranscriptDatasetID string                  `json:"transcript_dataset_id,omitempty"`
	ServiceAPIKey       string                  `json:"service_api_key,omitempty"`
	AppAPIKey           string                  `json:"app_api_key,omitempty"`
	AppUser             string                  `json:"app_user,omitempty"`
	IndexingTechnique   string                  `json:"indexing_technique,omitempty"`
	TimeoutSeconds      float64                 `json:"timeout_seconds,omitempty"`
	AppSchemes          map[string]SchemeConfig `json:"app_schemes,omitempty"`
	ActiveAppScheme     string                  `json:"active_app_scheme,omitempty"`
}

// Document is the registry file: version 2, an active profile name, and the
// profile map.
type Document struct {
	Version       int               `json:"version"`
	ActiveProfile string            `json:"active_profile"`
	Profiles      map[string]Config `json:"profiles"`
}

// Patch is a partial profile update. Nil fields are left untouched; empty
// strings clear the field. The JSON tags match the HTTP config surface, so
// request bodies decode directly into a Patch.
type Patch struct {
	BaseURL             *string  `json:"base_url"`
	DatasetID           *string  `json:"dataset_id"`
	NoteDatasetID       *string  `json:"note_dataset_id"`
	TranscriptDatasetID *string  `json:"transcript_dataset_id"`
	ServiceAPIKey       *string  `json:"service_api_key"`
	AppAPIKey           *string  `json:"app_api_key"`
	AppUser             *string  `json:"app_user"`
	IndexingTechnique   *string  `json:"indexing_technique"`
	TimeoutSeconds      *float64 `json:"timeout_seconds"`
}

func (p Patch) apply(c *Config) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}

	setString(&c.BaseURL, p.BaseURL)
	setString(&c.DatasetID, p.DatasetID)
	setString(&c.NoteDatasetID, p.NoteDatasetID)
	setString(&c.TranscriptDatasetID, p.TranscriptDatasetID)
	setString(&c.ServiceAPIKey, p.ServiceAPIKey)
	setString(&c.AppAPIKey, p.AppAPIKey)
	setString(&c.AppUser, p.AppUser)
	setString(&c.IndexingTechnique, p.IndexingTechnique)

	if p.TimeoutSeconds != nil {
		c.TimeoutSeconds = *p.TimeoutSeconds
	}
}

// Registry reads and writes the profile document. All operations normalize
// before returning; writes are atomic (write-to-temp + rename) and
// serialized by an internal mutex.
type Registry struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewRegistry creates a registry persisted at path. A nil logger falls back
// to slog.Default().
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{path: path, logger: logger}
}

// DefaultPath returns <config-dir>/dify.json.
func DefaultPath() (string, error) {
	dir := config.DefaultConfigDir()
	if dir == "" {
		return "", errors.New("resolving config dir: home directory unknown")
	}

	return filepath.Join(dir, registryFileName), nil
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// load reads, decodes, and normalizes the document. A missing file yields
// the empty template document; an unreadable or malformed file is treated
// as empty rather than blocking every profile operation. Reads never write:
// the normalized form is persisted by the next mutating operation.
func (r *Registry) load() Document {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("reading profile registry", slog.String("path", r.path), slog.String("error", err.Error()))
		}

		return normalizeDocument(Document{})
	}

	return normalizeDocument(decodeDocument(raw, r.logger))
}

// decodeDocument parses either the v2 document or a legacy v1 flat config.
// A v1 document lands in profiles["default"], which normalization then
// forks into a derived profile.
func decodeDocument(raw []byte, logger *slog.Logger) Document {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		logger.Warn("profile registry is not valid JSON, starting empty", slog.String("error", err.Error()))
		return Document{}
	}

	if _, ok := probe["profiles"]; ok {
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			logger.Warn("profile registry document malformed, starting empty", slog.String("error", err.Error()))
			return Document{}
		}

		return doc
	}

	var flat Config
	if err := json.Unmarshal(raw, &flat); err != nil {
		logger.Warn("legacy profile config malformed, starting empty", slog.String("error", err.Error()))
		return Document{}
	}

	return Document{
		Version:       2,
		ActiveProfile: DefaultProfile,
		Profiles:      map[string]Config{DefaultProfile: flat},
	}
}

// save writes the document atomically with stable formatting (sorted keys,
// two-space indent), so re-serializing a normalized document is byte-equal.
func (r *Registry) save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile registry: %w", err)
	}

	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	if err := renameio.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("writing profile registry: %w", err)
	}

	return nil
}

// Get returns the active profile's name and configuration.
func (r *Registry) Get() (string, Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	return doc.ActiveProfile, doc.Profiles[doc.ActiveProfile], nil
}

// GetProfile returns a profile by name.
func (r *Registry) GetProfile(name string) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	cfg, ok := doc.Profiles[strings.TrimSpace(name)]
	if !ok {
		return Config{}, fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}

	return cfg, nil
}

// Update applies a patch to the active profile and returns the profile name
// the write landed in. When the active profile is the default template, the
// patched result is forked into a derived profile and activated; default
// itself is never written.
func (r *Registry) Update(patch Patch) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()
	target := doc.ActiveProfile

	if target == DefaultProfile {
		forked := Config{}
		patch.apply(&forked)

		target = deriveProfileName(forked, func(name string) bool {
			_, ok := doc.Profiles[name]
			return ok
		})
		doc.Profiles[target] = forked
		doc.ActiveProfile = target
	} else {
		cfg := doc.Profiles[target]
		patch.apply(&cfg)
		doc.Profiles[target] = cfg
	}

	doc = normalizeDocument(doc)

	if err := r.save(doc); err != nil {
		return "", err
	}

	return doc.ActiveProfile, nil
}

// Summary is one row of ListProfiles.
type Summary struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	BaseURL   string `json:"base_url"`
	DatasetID string `json:"dataset_id"`
}

// ListProfiles returns all profiles, default first, the rest sorted by name.
func (r *Registry) ListProfiles() ([]Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()
	names := sortedProfileNames(doc.Profiles)

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		cfg := doc.Profiles[name]
		out = append(out, Summary{
			Name:      name,
			Active:    name == doc.ActiveProfile,
			BaseURL:   cfg.BaseURL,
			DatasetID: cfg.DatasetID,
		})
	}

	return out, nil
}

// SetActiveProfile switches the active profile.
func (r *Registry) SetActiveProfile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: profile name required", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	if _, ok := doc.Profiles[name]; !ok {
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}

	doc.ActiveProfile = name

	return r.save(normalizeDocument(doc))
}

// UpsertProfile creates or updates a named profile. A new profile starts
// from cloneFrom (when given) or empty; the patch is applied on top. The
// default template cannot be written.
func (r *Registry) UpsertProfile(name string, patch Patch, cloneFrom string, activate bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: profile name required", ErrInvalid)
	}

	if name == DefaultProfile {
		return fmt.Errorf("%w: profile %q is a reserved template", ErrInvalid, DefaultProfile)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	cfg, exists := doc.Profiles[name]
	if !exists {
		if from := strings.TrimSpace(cloneFrom); from != "" {
			src, ok := doc.Profiles[from]
			if !ok {
				return fmt.Errorf("clone source %q: %w", from, ErrNotFound)
			}

			cfg = cloneConfig(src)
		} else {
			cfg = Config{}
		}
	}

	patch.apply(&cfg)
	doc.Profiles[name] = cfg

	if activate {
		doc.ActiveProfile = name
	}

	return r.save(normalizeDocument(doc))
}

// DeleteProfile removes a profile. The default template and the last
// remaining non-default profile are protected. When the active profile is
// deleted, the first remaining non-default profile (sorted) becomes active.
func (r *Registry) DeleteProfile(name string) error {
	name = strings.TrimSpace(name)

	if name == DefaultProfile {
		return fmt.Errorf("%w: cannot delete the default template", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	if _, ok := doc.Profiles[name]; !ok {
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}

	if len(doc.Profiles) <= 2 {
		return fmt.Errorf("%w: cannot delete the last profile", ErrInvalid)
	}

	delete(doc.Profiles, name)

	if doc.ActiveProfile == name {
		doc.ActiveProfile = DefaultProfile

		for _, candidate := range sortedProfileNames(doc.Profiles) {
			if candidate != DefaultProfile {
				doc.ActiveProfile = candidate
				break
			}
		}
	}

	return r.save(normalizeDocument(doc))
}

// UpsertAppScheme creates or updates a named app-key scheme on the active
// profile. The default scheme stays empty and cannot be written.
func (r *Registry) UpsertAppScheme(name, appAPIKey string, activate bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: scheme name required", ErrInvalid)
	}

	if name == DefaultScheme {
		return fmt.Errorf("%w: scheme %q is a reserved template", ErrInvalid, DefaultScheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	active := doc.ActiveProfile
	cfg := doc.Profiles[active]

	if cfg.AppSchemes == nil {
		cfg.AppSchemes = map[string]SchemeConfig{}
	}

	cfg.AppSchemes[name] = SchemeConfig{AppAPIKey: strings.TrimSpace(appAPIKey)}

	if activate {
		cfg.ActiveAppScheme = name
	}

	cfg.AppAPIKey = cfg.AppSchemes[cfg.ActiveAppScheme].AppAPIKey
	doc.Profiles[active] = cfg

	return r.save(normalizeDocument(doc))
}

// DeleteAppScheme removes a scheme from the active profile. The default
// scheme and the last non-default scheme are protected; deleting the active
// scheme falls back to default.
func (r *Registry) DeleteAppScheme(name string) error {
	name = strings.TrimSpace(name)

	if name == DefaultScheme {
		return fmt.Errorf("%w: cannot delete the default scheme", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	active := doc.ActiveProfile
	cfg := doc.Profiles[active]

	if _, ok := cfg.AppSchemes[name]; !ok {
		return fmt.Errorf("app scheme %q: %w", name, ErrNotFound)
	}

	if len(cfg.AppSchemes) <= 2 {
		return fmt.Errorf("%w: cannot delete the last app scheme", ErrInvalid)
	}

	delete(cfg.AppSchemes, name)

	if cfg.ActiveAppScheme == name {
		cfg.ActiveAppScheme = DefaultScheme
	}

	cfg.AppAPIKey = cfg.AppSchemes[cfg.ActiveAppScheme].AppAPIKey
	doc.Profiles[active] = cfg

	return r.save(normalizeDocument(doc))
}

// SetActiveAppScheme switches the active profile's scheme.
func (r *Registry) SetActiveAppScheme(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: scheme name required", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()

	active := doc.ActiveProfile
	cfg := doc.Profiles[active]

	if _, ok := cfg.AppSchemes[name]; !ok {
		return fmt.Errorf("app scheme %q: %w", name, ErrNotFound)
	}

	cfg.ActiveAppScheme = name
	cfg.AppAPIKey = cfg.AppSchemes[name].AppAPIKey
	doc.Profiles[active] = cfg

	return r.save(normalizeDocument(doc))
}

// cloneConfig deep-copies a profile so clones do not share the scheme map.
func cloneConfig(src Config) Config {
	out := src

	if src.AppSchemes != nil {
		out.AppSchemes = make(map[string]SchemeConfig, len(src.AppSchemes))
		for name, scheme := range src.AppSchemes {
			out.AppSchemes[name] = scheme
		}
	}

	return out
}

func sortedProfileNames(profiles map[string]Config) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	// Pin the template first.
	for i, name := range names {
		if name == DefaultProfile && i > 0 {
			copy(names[1:i+1], names[:i])
			names[0] = DefaultProfile
			break
		}
	}

	return names
}
