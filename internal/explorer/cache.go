package explorer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Cache is a file-backed mapping from query key to stats. The file format is
// selected by extension: .json or .yaml/.yml, each optionally wrapped in zstd
// when the path ends in .zst (cache.json.zst). Entries are immutable once
// written; a re-fetch overwrites the whole entry.
//
// Writes snapshot the previous file to <path>.backup, write <path>.tmp, then
// rename over the live file, so a crash mid-write never loses more than the
// entry being added.
type Cache struct {
	path string
	log  zerolog.Logger

	entries map[string]*ComprehensivePositionStats
	hits    uint64
	misses  uint64
}

// OpenCache loads the cache at path, recovering from <path>.backup if the
// live file is corrupt and starting empty if both are unreadable. A missing
// file is not an error.
func OpenCache(path string, log zerolog.Logger) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path required")
	}
	if _, _, err := splitFormat(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		path:    path,
		log:     log,
		entries: make(map[string]*ComprehensivePositionStats),
	}

	entries, err := c.loadFile(path)
	if err == nil {
		c.entries = entries
		return c, nil
	}
	if os.IsNotExist(err) {
		return c, nil
	}

	c.log.Warn().Err(err).Str("path", path).Msg("cache file unreadable, trying backup")
	entries, berr := c.loadFile(path + ".backup")
	if berr == nil {
		c.log.Info().Int("entries", len(entries)).Msg("cache recovered from backup")
		c.entries = entries
		return c, nil
	}
	if !os.IsNotExist(berr) {
		c.log.Warn().Err(berr).Msg("backup recovery failed")
	}

	c.log.Warn().Msg("starting with empty cache")
	return c, nil
}

// Get returns the entry for key, if present.
func (c *Cache) Get(key string) (*ComprehensivePositionStats, bool) {
	entry, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return entry, ok
}

// Put stores an entry and flushes the cache to disk.
func (c *Cache) Put(key string, entry *ComprehensivePositionStats) error {
	c.entries[key] = entry
	return c.Flush()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Stats returns lookup hit/miss counts for this run.
func (c *Cache) Stats() (hits, misses uint64) { return c.hits, c.misses }

// Flush writes the full mapping to disk: backup, temp file, atomic rename.
func (c *Cache) Flush() error {
	data, err := c.encode()
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	if prev, err := os.ReadFile(c.path); err == nil {
		if err := os.WriteFile(c.path+".backup", prev, 0644); err != nil {
			return fmt.Errorf("write cache backup: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func (c *Cache) loadFile(path string) (map[string]*ComprehensivePositionStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	format, compressed, err := splitFormat(c.path)
	if err != nil {
		return nil, err
	}
	if compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress cache: %w", err)
		}
	}

	entries := make(map[string]*ComprehensivePositionStats)
	switch format {
	case ".json":
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode cache json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode cache yaml: %w", err)
		}
	}
	return entries, nil
}

func (c *Cache) encode() ([]byte, error) {
	format, compressed, err := splitFormat(c.path)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case ".json":
		data, err = json.MarshalIndent(c.entries, "", "  ")
	default:
		data, err = yaml.Marshal(c.entries)
	}
	if err != nil {
		return nil, err
	}

	if compressed {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}
	return data, nil
}

// splitFormat returns the logical format extension and whether the file is
// zstd-compressed.
func splitFormat(path string) (format string, compressed bool, err error) {
	name := path
	if strings.HasSuffix(name, ".zst") {
		compressed = true
		name = strings.TrimSuffix(name, ".zst")
	}
	switch ext := filepath.Ext(name); ext {
	case ".json", ".yaml", ".yml":
		return ext, compressed, nil
	default:
		return "", false, fmt.Errorf("unsupported cache file extension %q (want .json, .yaml or .yml, optionally .zst)", path)
	}
}
