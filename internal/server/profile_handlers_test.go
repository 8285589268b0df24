package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifyConfigUpdateReturnsMaskedView(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodPost, "/dify_config", map[string]any{
		"base_url":        "http://dify.work",
		"service_api_key": "svc-key-123456789",
	})

	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, env)
	assert.Equal(t, "http://dify.work/v1", data["base_url"])
	assert.Equal(t, true, data["service_api_key_set"])
	assert.NotContains(t, data["service_api_key_masked"], "123456789")

	// The GET view matches what the update returned.
	_, getEnv := ts.do(t, http.MethodGet, "/dify_config", nil)
	assert.Equal(t, data["base_url"], dataMap(t, getEnv)["base_url"])
}

func TestUpsertProfileActivates(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodPost, "/dify_profiles", map[string]any{
		"name":     "work",
		"activate": true,
		"base_url": "http://dify.work",
	})
	require.Equal(t, http.StatusOK, w.Code)

	profiles, ok := dataMap(t, env)["profiles"].([]any)
	require.True(t, ok)

	var found, active bool
	for _, p := range profiles {
		m, ok := p.(map[string]any)
		require.True(t, ok)
		if m["name"] == "work" {
			found = true
			active, _ = m["active"].(bool)
		}
	}
	assert.True(t, found)
	assert.True(t, active)
}

func TestUpsertProfileRejectsDefaultTemplate(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodPost, "/dify_profiles", map[string]any{"name": "default"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Msg, "reserved")
}

func TestActivateUnknownProfile(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodPost, "/dify_profiles/activate", map[string]any{"name": "ghost"})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestDeleteProfileGuards(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodDelete, "/dify_profiles/default", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// The seeded initial profile is the last non-default one.
	_, listEnv := ts.do(t, http.MethodGet, "/dify_profiles", nil)
	profiles := dataMap(t, listEnv)["profiles"].([]any)
	require.Len(t, profiles, 2)

	var initial string
	for _, p := range profiles {
		m := p.(map[string]any)
		if m["name"] != "default" {
			initial = m["name"].(string)
		}
	}
	require.NotEmpty(t, initial)

	w, _ = ts.do(t, http.MethodDelete, "/dify_profiles/"+initial, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// With a second real profile the first becomes deletable.
	w, _ = ts.do(t, http.MethodPost, "/dify_profiles", map[string]any{"name": "spare"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := ts.do(t, http.MethodDelete, "/dify_profiles/"+initial, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, p := range dataMap(t, env)["profiles"].([]any) {
		assert.NotEqual(t, initial, p.(map[string]any)["name"])
	}
}

func TestAppSchemeLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodPost, "/dify_app_schemes", map[string]any{
		"name":        "mobile",
		"app_api_key": "app-key-mobile-123",
		"activate":    true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, env)
	assert.Equal(t, "mobile", data["active_app_scheme"])
	assert.Equal(t, true, data["app_api_key_set"])
	assert.NotContains(t, data["app_api_key_masked"], "mobile-123")

	w, _ = ts.do(t, http.MethodPost, "/dify_app_schemes/activate", map[string]any{"name": "ghost"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodDelete, "/dify_app_schemes/default", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// A second scheme makes the first deletable; the active key follows
	// the fallback to the default scheme.
	w, _ = ts.do(t, http.MethodPost, "/dify_app_schemes", map[string]any{
		"name":        "desktop",
		"app_api_key": "app-key-desktop-456",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = ts.do(t, http.MethodDelete, "/dify_app_schemes/mobile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", dataMap(t, env)["active_app_scheme"])
}
