// Package config resolves the module's typed configuration record from
// explicit overrides, the process environment, a dotenv file inside
// the data directory, and OS-keyring-backed secrets, in that
// precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/wipcomputer/memory-crystal/pkg/embedding"
)

const envPrefix = "CRYSTAL"

const keyringScheme = "keyring://"

// legacyDataDirName is the fallback data directory when the preferred
// one doesn't already contain a store.
const legacyDataDirName = ".memory-crystal"

// Config is the module's resolved, typed configuration.
type Config struct {
	DataDir string

	EmbeddingProvider embedding.Provider
	EmbeddingAPIKey   string
	EmbeddingModel    string

	LocalHTTPHost  string
	LocalHTTPModel string

	RelayURL   string
	RelayToken string

	AgentID string
}

// Resolve builds a Config. overrides take precedence over everything
// else; below that, `CRYSTAL_`-prefixed environment variables; below
// that, a `.env` file inside the resolved data directory; any value
// found to be a `keyring://service/key` URI is finally resolved
// against the OS keyring.
func Resolve(overrides map[string]string) (Config, error) {
	dataDir, err := resolveDataDir(overrides)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: reading dotenv file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}
	v.Set("dataDir", dataDir)

	provider := embedding.Provider(v.GetString("embeddingProvider"))
	switch provider {
	case embedding.ProviderOpenAI, embedding.ProviderOllama, embedding.ProviderGoogle:
	case "":
		provider = embedding.ProviderOpenAI
	default:
		return Config{}, fmt.Errorf("config: unknown embedding provider %q", provider)
	}

	cfg := Config{
		DataDir:           dataDir,
		EmbeddingProvider: provider,
		EmbeddingAPIKey:   resolveSecret(v.GetString("embeddingApiKey")),
		EmbeddingModel:    v.GetString("embeddingModel"),
		LocalHTTPHost:     v.GetString("localHttpHost"),
		LocalHTTPModel:    v.GetString("localHttpModel"),
		RelayURL:          v.GetString("relayUrl"),
		RelayToken:        resolveSecret(v.GetString("relayToken")),
		AgentID:           v.GetString("agentId"),
	}
	return cfg, nil
}

// resolveDataDir picks <home>/.ldm/memory if it already contains a
// store, falling back to a legacy path under the home directory.
// This runs before viper is constructed, since it decides where the
// dotenv file is looked for.
func resolveDataDir(overrides map[string]string) (string, error) {
	if dir, ok := overrides["dataDir"]; ok && dir != "" {
		return dir, nil
	}
	if dir := os.Getenv(envPrefix + "_DATADIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}

	preferred := filepath.Join(home, ".ldm", "memory")
	if storeExists(preferred) {
		return preferred, nil
	}
	return filepath.Join(home, legacyDataDirName), nil
}

func storeExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "crystal.db"))
	return err == nil
}

// isKeyringURI reports whether value uses the keyring:// URI scheme.
func isKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// resolveSecret resolves a keyring:// URI to its stored value,
// returning the original value unchanged if it is not a keyring URI
// or if resolution fails (the caller sees the unresolved URI and can
// surface a clearer error when the value is actually used).
func resolveSecret(value string) string {
	if !isKeyringURI(value) {
		return value
	}
	path := strings.TrimPrefix(value, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return value
	}
	secret, err := keyring.Get(parts[0], parts[1])
	if err != nil {
		return value
	}
	return secret
}
