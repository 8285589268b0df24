package profile

import (
	"strings"
	"time"

	"github.com/pxh52013145/VNote/internal/dify"
)

// Overlay layers the stored profile on top of a base client config.
// Profile values win where set; everything else falls through to the base,
// and the result is normalized.
func (c Config) Overlay(base dify.Config) dify.Config {
	overlay := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}

	overlay(&base.BaseURL, c.BaseURL)
	overlay(&base.DatasetID, c.DatasetID)
	overlay(&base.NoteDatasetID, c.NoteDatasetID)
	overlay(&base.TranscriptDatasetID, c.TranscriptDatasetID)
	overlay(&base.ServiceAPIKey, c.ServiceAPIKey)
	overlay(&base.AppAPIKey, c.AppAPIKey)
	overlay(&base.AppUser, c.AppUser)
	overlay(&base.IndexingTechnique, c.IndexingTechnique)

	if c.TimeoutSeconds > 0 {
		base.Timeout = time.Duration(c.TimeoutSeconds * float64(time.Second))
	}

	return base.Normalized()
}

// Resolve loads the active profile and overlays it onto the base config.
// A missing registry file is not an error; the base config passes through
// normalized.
func (r *Registry) Resolve(base dify.Config) (dify.Config, error) {
	_, cfg, err := r.Get()
	if err != nil {
		return base.Normalized(), err
	}

	return cfg.Overlay(base), nil
}
