package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every tutord environment variable.
const EnvPrefix = "TUTORD_"

// fileLimit caps the config file size.
const fileLimit = 1 << 20

// subsections names the nested blocks of each section so that env variables
// can reach them: TUTORD_EMBEDDINGS_TEI_BASE_URL -> embeddings.tei.base_url.
var subsections = map[string][]string{
	"embeddings":  {"tei", "fastembed", "ollama", "gemini"},
	"generation":  {"gemini", "openai", "ollama"},
	"vectorstore": {"chromem", "qdrant"},
	"session":     {"redis"},
	"analytics":   {"nats", "kafka"},
}

// LoadWithFile layers defaults, the YAML file at path and TUTORD_*
// environment variables, later layers winning, then validates the result.
// An empty path means ~/.config/tutord/config.yaml. A missing file is not
// an error, but an existing one must live under ~/.config/tutord/ or
// /etc/tutord/, be 0600 or 0400 and stay under 1MB.
//
// Environment names drop the prefix, lowercase, and split on the first
// underscore into section and field; known subsections split once more:
//
//	TUTORD_TUTOR_TOP_K            -> tutor.top_k
//	TUTORD_VECTORSTORE_PROVIDER   -> vectorstore.provider
//	TUTORD_SESSION_REDIS_URL      -> session.redis.url
func LoadWithFile(path string) (*Config, error) {
	if path == "" {
		dir, err := userConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := checkLocation(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	k := koanf.New(".")
	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config %s: %w", path, err)
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load %s* environment: %w", EnvPrefix, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// listKeys holds the koanf paths of every []string field in Config.
var listKeys = collectListKeys(reflect.TypeOf(Config{}), "")

func collectListKeys(t reflect.Type, prefix string) map[string]struct{} {
	keys := map[string]struct{}{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		path := prefix + tag
		switch {
		case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.String:
			keys[path] = struct{}{}
		case f.Type.Kind() == reflect.Struct:
			for k := range collectListKeys(f.Type, path+".") {
				keys[k] = struct{}{}
			}
		}
	}
	return keys
}

// envValue maps an environment variable to a koanf key and splits list
// values on commas: TUTORD_EMBEDDINGS_CHAIN=tei,mock -> [tei mock].
func envValue(name, value string) (string, any) {
	key := envKey(name)
	if _, ok := listKeys[key]; !ok {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// envKey maps an environment variable name to a koanf key.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	for _, sub := range subsections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tutord"), nil
}

// checkLocation rejects paths, symlinks resolved, outside the allowed
// directories. It runs before the file is known to exist.
func checkLocation(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	userDir, err := userConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, "/etc/tutord"} {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return errors.New("must be under ~/.config/tutord/ or /etc/tutord/")
}

// readConfigFile checks mode and size on the open descriptor, so the file
// that was checked is the file that is read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if perm := info.Mode().Perm(); runtime.GOOS != "windows" && perm != 0600 && perm != 0400 {
		return nil, fmt.Errorf("mode %v is too open, want 0600 or 0400", perm)
	}
	if info.Size() > fileLimit {
		return nil, fmt.Errorf("%d bytes exceeds the %d byte limit", info.Size(), fileLimit)
	}
	return io.ReadAll(io.LimitReader(f, fileLimit))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
