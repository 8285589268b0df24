package objstore

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxh52013145/VNote/internal/config"
)

var bucketShape = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func sha1Suffix(name string) string {
	sum := sha1.Sum([]byte(name))
	return "-" + hex.EncodeToString(sum[:])[:8]
}

func TestBucketNameForProfile_EmptyName(t *testing.T) {
	got := BucketNameForProfile("", "ragvideo-")
	assert.Equal(t, "ragvideo-default", got)
}

func TestBucketNameForProfile_SimpleName(t *testing.T) {
	got := BucketNameForProfile("work", "ragvideo-")
	assert.Equal(t, "ragvideo-work"+sha1Suffix("work"), got)
	assert.Regexp(t, bucketShape, got)
}

func TestBucketNameForProfile_PunctuationAndCase(t *testing.T) {
	got := BucketNameForProfile("My Profile!", "ragvideo-")
	assert.True(t, strings.HasPrefix(got, "ragvideo-my-profile-"), got)
	assert.Regexp(t, bucketShape, got)
}

func TestBucketNameForProfile_NonASCIINamesDiffer(t *testing.T) {
	a := BucketNameForProfile("中文配置", "ragvideo-")
	b := BucketNameForProfile("另一个配置", "ragvideo-")

	// Both slugify away entirely, so the hash suffix is all that
	// separates them.
	assert.True(t, strings.HasPrefix(a, "ragvideo-default-"), a)
	assert.True(t, strings.HasPrefix(b, "ragvideo-default-"), b)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, bucketShape, a)
	assert.Regexp(t, bucketShape, b)
}

func TestBucketNameForProfile_LongNameTruncates(t *testing.T) {
	name := strings.Repeat("a", 100)
	got := BucketNameForProfile(name, "ragvideo-")

	assert.Len(t, got, 63)
	assert.Equal(t, sha1Suffix(name)[1:], got[len(got)-8:])
	assert.Regexp(t, bucketShape, got)
}

func TestBucketNameForProfile_PrefixLowercased(t *testing.T) {
	got := BucketNameForProfile("work", "RAGVideo-")
	assert.True(t, strings.HasPrefix(got, "ragvideo-work"), got)
}

func TestBucketNameForProfile_DeterministicAndDistinct(t *testing.T) {
	names := []string{"a", "A", "a.b", "a-b", "a_b", "日本語", "", "default", "an extremely long profile name with spaces"}
	seen := map[string]string{}

	for _, name := range names {
		got := BucketNameForProfile(name, "ragvideo-")
		assert.Equal(t, got, BucketNameForProfile(name, "ragvideo-"), name)
		assert.Regexp(t, bucketShape, got, name)

		if prev, dup := seen[got]; dup {
			// "a" and "a" won't recur; distinct inputs must not collide.
			t.Fatalf("bucket collision: %q and %q both map to %s", prev, name, got)
		}
		seen[got] = name
	}
}

func TestMetaValue(t *testing.T) {
	meta := map[string]string{
		"X-Amz-Meta-Bundle-Sha256": "abc123",
		"Note-Sha256":              "def456",
		"Empty":                    "   ",
	}

	assert.Equal(t, "abc123", MetaValue(meta, "bundle-sha256"))
	assert.Equal(t, "abc123", MetaValue(meta, "Bundle-Sha256"))
	assert.Equal(t, "def456", MetaValue(meta, "note-sha256"))
	assert.Empty(t, MetaValue(meta, "empty"))
	assert.Empty(t, MetaValue(meta, "missing"))
	assert.Empty(t, MetaValue(nil, "bundle-sha256"))
	assert.Empty(t, MetaValue(meta, ""))
}

func testMinioConfig() config.MinioConfig {
	return config.MinioConfig{
		Endpoint:        "localhost:9000",
		AccessKey:       "ak",
		SecretKey:       "sk",
		BucketPrefix:    "ragvideo-",
		ObjectPrefix:    "bundles/",
		TombstonePrefix: "tombstones/",
	}
}

func TestNew_RequiresConnectionSettings(t *testing.T) {
	cfg := testMinioConfig()
	cfg.Endpoint = ""
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "MINIO_ENDPOINT")

	cfg = testMinioConfig()
	cfg.AccessKey = " "
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "MINIO_ACCESS_KEY")

	cfg = testMinioConfig()
	cfg.SecretKey = ""
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "MINIO_SECRET_KEY")
}

func TestNew_KeyDerivation(t *testing.T) {
	store, err := New(testMinioConfig())
	require.NoError(t, err)

	assert.Equal(t, "bundles/abc123.zip", store.BundleKey("abc123"))
	assert.Equal(t, "tombstones/abc123.json", store.TombstoneKey("abc123"))
}
