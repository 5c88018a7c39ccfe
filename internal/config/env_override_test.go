package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_Site(t *testing.T) {
	t.Run("path prefix and dirs", func(t *testing.T) {
		t.Setenv("CATALOG_PATH_PREFIX", "/mirror/")
		t.Setenv("CATALOG_OUTPUT_DIR", "public")
		t.Setenv("CATALOG_DATA_DIR", "catalog-data")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/mirror/", cfg.PathPrefix)
		assert.Equal(t, "public", cfg.Dir.Output)
		assert.Equal(t, "catalog-data", cfg.Dir.Data)
	})

	t.Run("empty values leave config untouched", func(t *testing.T) {
		t.Setenv("CATALOG_PATH_PREFIX", "")
		t.Setenv("CATALOG_OUTPUT_DIR", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/obis-products-catalog-eleventy/", cfg.PathPrefix)
		assert.Equal(t, "_site", cfg.Dir.Output)
	})
}

func TestEnvOverrides_Publish(t *testing.T) {
	t.Setenv("CATALOG_PUBLISH_DRIVER", "s3")
	t.Setenv("CATALOG_S3_BUCKET", "obis-catalog")
	t.Setenv("CATALOG_S3_REGION", "eu-west-1")
	t.Setenv("CATALOG_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("CATALOG_S3_PATH_STYLE", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "s3", cfg.Publish.Driver)
	assert.Equal(t, "obis-catalog", cfg.Publish.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Publish.Region)
	assert.Equal(t, "http://localhost:9000", cfg.Publish.Endpoint)
	assert.True(t, cfg.Publish.PathStyle)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides_InvalidBoolIgnored(t *testing.T) {
	t.Setenv("CATALOG_S3_PATH_STYLE", "sometimes")

	cfg := DefaultConfig()
	cfg.Publish.PathStyle = true
	cfg.applyEnvOverrides()

	assert.True(t, cfg.Publish.PathStyle)
}
