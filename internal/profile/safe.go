package profile

import "strings"

// maskThreshold is the secret length at or below which the whole value is
// masked rather than keeping the first and last four characters visible.
const maskThreshold = 8

// SafeScheme is a redacted view of one app-key scheme.
type SafeScheme struct {
	AppAPIKeySet    bool   `json:"app_api_key_set"`
	AppAPIKeyMasked string `json:"app_api_key_masked,omitempty"`
}

// SafeConfig is the active profile with secrets masked, suitable for
// returning over HTTP and for logs.
type SafeConfig struct {
	Profile             string                `json:"profile"`
	BaseURL             string                `json:"base_url,omitempty"`
	DatasetID           string                `json:"dataset_id,omitempty"`
	NoteDatasetID       string                `json:"note_dataset_id,omitempty"`
	TranscriptDatasetID string                `json:"transcript_dataset_id,omitempty"`
	AppUser             string                `json:"app_user,omitempty"`
	IndexingTechnique   string                `json:"indexing_technique,omitempty"`
	TimeoutSeconds      float64               `json:"timeout_seconds,omitempty"`
	ServiceAPIKeySet    bool                  `json:"service_api_key_set"`
	ServiceAPIKeyMasked string                `json:"service_api_key_masked,omitempty"`
	AppAPIKeySet        bool                  `json:"app_api_key_set"`
	AppAPIKeyMasked     string                `json:"app_api_key_masked,omitempty"`
	ActiveAppScheme     string                `json:"active_app_scheme,omitempty"`
	AppSchemes          map[string]SafeScheme `json:"app_schemes,omitempty"`
	ConfigPath          string                `json:"config_path"`
}

// GetSafe returns the active profile with all API keys masked.
func (r *Registry) GetSafe() (SafeConfig, error) {
	name, cfg, err := r.Get()
	if err != nil {
		return SafeConfig{}, err
	}

	safe := SafeConfig{
		Profile:             name,
		BaseURL:             cfg.BaseURL,
		DatasetID:           cfg.DatasetID,
		NoteDatasetID:       cfg.NoteDatasetID,
		TranscriptDatasetID: cfg.TranscriptDatasetID,
		AppUser:             cfg.AppUser,
		IndexingTechnique:   cfg.IndexingTechnique,
		TimeoutSeconds:      cfg.TimeoutSeconds,
		ServiceAPIKeySet:    cfg.ServiceAPIKey != "",
		ServiceAPIKeyMasked: maskSecret(cfg.ServiceAPIKey),
		AppAPIKeySet:        cfg.AppAPIKey != "",
		AppAPIKeyMasked:     maskSecret(cfg.AppAPIKey),
		ActiveAppScheme:     cfg.ActiveAppScheme,
		ConfigPath:          r.Path(),
	}

	if len(cfg.AppSchemes) > 0 {
		safe.AppSchemes = make(map[string]SafeScheme, len(cfg.AppSchemes))
		for schemeName, scheme := range cfg.AppSchemes {
			safe.AppSchemes[schemeName] = SafeScheme{
				AppAPIKeySet:    scheme.AppAPIKey != "",
				AppAPIKeyMasked: maskSecret(scheme.AppAPIKey),
			}
		}
	}

	return safe, nil
}

// maskSecret keeps the first and last four characters of long secrets and
// masks short ones entirely.
func maskSecret(secret string) string {
	runes := []rune(secret)
	if len(runes) == 0 {
		return ""
	}

	if len(runes) <= maskThreshold {
		return strings.Repeat("*", len(runes))
	}

	return string(runes[:4]) + strings.Repeat("*", len(runes)-8) + string(runes[len(runes)-4:])
}
