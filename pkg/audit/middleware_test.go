package audit

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareParams_JSON(t *testing.T) {
	t.Parallel()

	t.Run("marshal with all fields", func(t *testing.T) {
		t.Parallel()
		config := &Config{
			Component:           "test-component",
			IncludeRequestData:  true,
			IncludeResponseData: false,
			MaxDataSize:         2048,
		}

		params := MiddlewareParams{
			ConfigPath: "/path/to/config.json",
			ConfigData: config,
			Component:  "override-component",
		}

		data, err := json.Marshal(params)
		require.NoError(t, err)

		var unmarshaled MiddlewareParams
		err = json.Unmarshal(data, &unmarshaled)
		require.NoError(t, err)

		assert.Equal(t, "/path/to/config.json", unmarshaled.ConfigPath)
		assert.Equal(t, "override-component", unmarshaled.Component)
		require.NotNil(t, unmarshaled.ConfigData)
		assert.Equal(t, "test-component", unmarshaled.ConfigData.Component)
		assert.True(t, unmarshaled.ConfigData.IncludeRequestData)
		assert.False(t, unmarshaled.ConfigData.IncludeResponseData)
		assert.Equal(t, 2048, unmarshaled.ConfigData.MaxDataSize)
	})

	t.Run("marshal with config path only", func(t *testing.T) {
		t.Parallel()
		params := MiddlewareParams{
			ConfigPath: "/path/to/config.json",
			Component:  "test-component",
		}

		data, err := json.Marshal(params)
		require.NoError(t, err)

		var unmarshaled MiddlewareParams
		err = json.Unmarshal(data, &unmarshaled)
		require.NoError(t, err)

		assert.Equal(t, "/path/to/config.json", unmarshaled.ConfigPath)
		assert.Equal(t, "test-component", unmarshaled.Component)
		assert.Nil(t, unmarshaled.ConfigData)
	})
}

func TestNewMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("create with config data (preferred method)", func(t *testing.T) {
		t.Parallel()
		config := &Config{
			Component:           "test-component",
			IncludeRequestData:  true,
			IncludeResponseData: false,
			MaxDataSize:         2048,
		}

		mw, err := NewMiddleware(MiddlewareParams{
			ConfigPath: "/some/path/config.json", // should be ignored
			ConfigData: config,                    // should be used
			Component:  "override-component",
		})
		require.NoError(t, err)
		require.NotNil(t, mw)
		t.Cleanup(func() { mw.Close() })
	})

	t.Run("create with config file path (backwards compatibility)", func(t *testing.T) {
		t.Parallel()
		tempDir := t.TempDir()
		configFile := filepath.Join(tempDir, "audit_config.json")

		testConfig := map[string]any{
			"component":             "file-based-component",
			"include_request_data":  false,
			"include_response_data": true,
			"max_data_size":         1024,
		}
		configData, err := json.Marshal(testConfig)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(configFile, configData, 0600))

		mw, err := NewMiddleware(MiddlewareParams{
			ConfigPath: configFile,
			Component:  "override-component",
		})
		require.NoError(t, err)
		t.Cleanup(func() { mw.Close() })
	})

	t.Run("create with default config", func(t *testing.T) {
		t.Parallel()
		mw, err := NewMiddleware(MiddlewareParams{Component: "default-component"})
		require.NoError(t, err)
		t.Cleanup(func() { mw.Close() })
	})

	t.Run("config data takes precedence over config path", func(t *testing.T) {
		t.Parallel()
		tempDir := t.TempDir()
		configFile := filepath.Join(tempDir, "audit_config.json")

		fileConfig := map[string]any{
			"component":             "file-component",
			"include_request_data":  false,
			"include_response_data": false,
			"max_data_size":         512,
		}
		configData, err := json.Marshal(fileConfig)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(configFile, configData, 0600))

		inMemoryConfig := &Config{
			Component:           "memory-component",
			IncludeRequestData:  true,
			IncludeResponseData: true,
			MaxDataSize:         4096,
		}

		mw, err := NewMiddleware(MiddlewareParams{
			ConfigPath: configFile,     // should be ignored
			ConfigData: inMemoryConfig, // should be used
			Component:  "override-component",
		})
		require.NoError(t, err)
		t.Cleanup(func() { mw.Close() })
	})

	t.Run("invalid config path returns error", func(t *testing.T) {
		t.Parallel()
		_, err := NewMiddleware(MiddlewareParams{
			ConfigPath: "/nonexistent/path/config.json",
			Component:  "test-component",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load audit configuration")
	})

	t.Run("component override works correctly", func(t *testing.T) {
		t.Parallel()
		config := &Config{
			Component:   "original-component",
			MaxDataSize: 1024,
		}

		mw, err := NewMiddleware(MiddlewareParams{
			ConfigData: config,
			Component:  "overridden-component",
		})
		require.NoError(t, err)
		t.Cleanup(func() { mw.Close() })
	})
}

func TestNewMiddlewareFromJSON(t *testing.T) {
	t.Parallel()

	t.Run("invalid middleware parameters", func(t *testing.T) {
		t.Parallel()
		_, err := NewMiddlewareFromJSON(json.RawMessage(`{"invalid": "json"`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal audit middleware parameters")
	})

	t.Run("old-style parameters still work", func(t *testing.T) {
		t.Parallel()
		tempDir := t.TempDir()
		configFile := filepath.Join(tempDir, "audit_config.json")

		testConfig := map[string]any{
			"component":             "backwards-compat-component",
			"include_request_data":  true,
			"include_response_data": false,
			"max_data_size":         512,
		}
		configData, err := json.Marshal(testConfig)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(configFile, configData, 0600))

		oldStyleParams := map[string]any{
			"config_path": configFile,
			"component":   "old-style-component",
		}
		paramBytes, err := json.Marshal(oldStyleParams)
		require.NoError(t, err)

		mw, err := NewMiddlewareFromJSON(paramBytes)
		require.NoError(t, err)
		t.Cleanup(func() { mw.Close() })
	})
}

func TestMiddlewareType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "audit", MiddlewareType)
}

func TestMiddlewareHandlerMethods(t *testing.T) {
	t.Parallel()

	called := false
	mockFunc := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}
	middleware := &Middleware{middleware: mockFunc}

	t.Run("handler returns middleware function", func(t *testing.T) {
		handler := middleware.Handler()
		require.NotNil(t, handler)
		wrapped := handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		require.NotNil(t, wrapped)
	})

	t.Run("close returns no error when no auditor was built", func(t *testing.T) {
		err := middleware.Close()
		assert.NoError(t, err)
	})

	_ = called
}
