package profile

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// derivedNameDatasetChars is how much of the dataset id feeds the derived
// profile name.
const derivedNameDatasetChars = 8

// normalizeDocument enforces the registry invariants:
//  1. profiles["default"] exists and is the empty template; user data found
//     in it is forked into a derived profile, and active_profile follows.
//  2. every profile has an empty app_schemes["default"], a legacy flat
//     app_api_key is folded into a non-default scheme, and active_app_scheme
//     always names an existing scheme.
//  3. the flat app_api_key mirrors the active scheme's key.
//
// Normalizing an already-normalized document is a no-op, so re-serializing
// it is byte-equal.
func normalizeDocument(doc Document) Document {
	out := Document{
		Version:       2,
		ActiveProfile: strings.TrimSpace(doc.ActiveProfile),
		Profiles:      make(map[string]Config, len(doc.Profiles)+1),
	}

	for name, cfg := range doc.Profiles {
		out.Profiles[name] = cloneConfig(cfg)
	}

	def, ok := out.Profiles[DefaultProfile]
	if ok && hasUserData(def) {
		derived := deriveProfileName(def, func(name string) bool {
			_, taken := out.Profiles[name]
			return taken
		})

		out.Profiles[derived] = def

		if out.ActiveProfile == "" || out.ActiveProfile == DefaultProfile {
			out.ActiveProfile = derived
		}
	}

	out.Profiles[DefaultProfile] = Config{}

	if out.ActiveProfile == "" {
		out.ActiveProfile = DefaultProfile
	}

	if _, ok := out.Profiles[out.ActiveProfile]; !ok {
		out.ActiveProfile = DefaultProfile
	}

	for name, cfg := range out.Profiles {
		normalizeSchemes(&cfg)
		out.Profiles[name] = cfg
	}

	return out
}

// normalizeSchemes enforces the per-profile scheme invariants (rules 2 and 3).
func normalizeSchemes(cfg *Config) {
	if cfg.AppSchemes == nil {
		cfg.AppSchemes = map[string]SchemeConfig{}
	}

	// The template scheme exists and stays empty.
	cfg.AppSchemes[DefaultScheme] = SchemeConfig{}

	cfg.ActiveAppScheme = strings.TrimSpace(cfg.ActiveAppScheme)
	if cfg.ActiveAppScheme == "" {
		cfg.ActiveAppScheme = DefaultScheme
	}

	if _, ok := cfg.AppSchemes[cfg.ActiveAppScheme]; !ok {
		cfg.ActiveAppScheme = DefaultScheme
	}

	// Fold a legacy flat key into the schemes. An active non-default scheme
	// that already carries the key wins; otherwise any scheme with the same
	// key is adopted; otherwise the flat write targets the active scheme,
	// creating "main" when the active scheme is the template.
	if flat := strings.TrimSpace(cfg.AppAPIKey); flat != "" {
		switch {
		case cfg.ActiveAppScheme != DefaultScheme && cfg.AppSchemes[cfg.ActiveAppScheme].AppAPIKey == flat:
			// Already consistent.
		case schemeNameWithKey(cfg.AppSchemes, flat) != "":
			cfg.ActiveAppScheme = schemeNameWithKey(cfg.AppSchemes, flat)
		case cfg.ActiveAppScheme != DefaultScheme:
			cfg.AppSchemes[cfg.ActiveAppScheme] = SchemeConfig{AppAPIKey: flat}
		default:
			name := freeSchemeName(cfg.AppSchemes, "main")
			cfg.AppSchemes[name] = SchemeConfig{AppAPIKey: flat}
			cfg.ActiveAppScheme = name
		}
	}

	cfg.AppAPIKey = cfg.AppSchemes[cfg.ActiveAppScheme].AppAPIKey
}

// hasUserData reports whether a profile carries anything beyond the empty
// template (credentials, endpoints, or non-template schemes).
func hasUserData(c Config) bool {
	for _, v := range []string{
		c.BaseURL, c.DatasetID, c.NoteDatasetID, c.TranscriptDatasetID,
		c.ServiceAPIKey, c.AppAPIKey, c.AppUser, c.IndexingTechnique,
	} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}

	if c.TimeoutSeconds != 0 {
		return true
	}

	for name, scheme := range c.AppSchemes {
		if name != DefaultScheme || strings.TrimSpace(scheme.AppAPIKey) != "" {
			return true
		}
	}

	return false
}

// deriveProfileName builds a stable human-readable name from a profile's
// endpoint: "host-port-datasetPrefix", falling back to "main" when nothing
// usable is present, with numeric disambiguation against taken names.
func deriveProfileName(cfg Config, taken func(string) bool) string {
	var parts []string

	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if u, err := url.Parse(base); err == nil {
			if host := strings.ToLower(u.Hostname()); host != "" {
				parts = append(parts, host)
			}

			if port := u.Port(); port != "" {
				parts = append(parts, port)
			}
		}
	}

	if ds := []rune(strings.TrimSpace(cfg.DatasetID)); len(ds) > 0 {
		if len(ds) > derivedNameDatasetChars {
			ds = ds[:derivedNameDatasetChars]
		}

		parts = append(parts, string(ds))
	}

	base := strings.Join(parts, "-")
	if base == "" {
		base = "main"
	}

	name := base
	for i := 2; taken(name); i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}

	return name
}

// schemeNameWithKey returns the first non-default scheme (sorted by name)
// holding the given key, or "".
func schemeNameWithKey(schemes map[string]SchemeConfig, key string) string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		if name != DefaultScheme {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	for _, name := range names {
		if schemes[name].AppAPIKey == key {
			return name
		}
	}

	return ""
}

// freeSchemeName disambiguates a scheme name against existing ones.
func freeSchemeName(schemes map[string]SchemeConfig, base string) string {
	name := base
	for i := 2; ; i++ {
		if _, taken := schemes[name]; !taken {
			return name
		}

		name = fmt.Sprintf("%s-%d", base, i)
	}
}
