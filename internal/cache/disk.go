package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"storygate/internal/apperr"
)

const (
	metaPrefix  = "cache_"
	imagePrefix = "img_"
)

// Disk stores cache entries as files in a single directory:
// cache_<key>.json for metadata and img_<key>_<i><ext> per image.
//
// There is no cross-process locking. Metadata is replaced atomically,
// so concurrent writers of the same key resolve to the last rename.
type Disk struct {
	dir          string
	publicPrefix string
	now          func() time.Time
}

// NewDisk creates dir if needed and returns a cache rooted there.
// publicPrefix is prepended to file names by URL.
func NewDisk(dir, publicPrefix string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", dir, err)
	}
	return &Disk{
		dir:          dir,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
		now:          time.Now,
	}, nil
}

// Dir returns the directory holding the cache files.
func (d *Disk) Dir() string { return d.dir }

// URL returns the public path of a cached file.
func (d *Disk) URL(file string) string {
	return path.Join("/", d.publicPrefix, file)
}

func metaName(key string) string { return metaPrefix + key + ".json" }

func imageName(key string, i int, ext string) string {
	return imagePrefix + key + "_" + strconv.Itoa(i) + ext
}

// Put writes images and then the metadata record for key.
func (d *Disk) Put(ctx context.Context, key string, images [][]byte, prompt string) (Entry, error) {
	if !ValidKey(key) {
		return Entry{}, apperr.Validation("invalid cache key")
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Key:       key,
		Files:     make([]string, 0, len(images)),
		Prompt:    prompt,
		CreatedAt: d.now().UTC(),
	}
	for i, img := range images {
		name := imageName(key, i, extensionFor(img))
		if err := os.WriteFile(filepath.Join(d.dir, name), img, 0o644); err != nil {
			return Entry{}, fmt.Errorf("cache: write %s: %w", name, err)
		}
		entry.Files = append(entry.Files, name)
	}

	meta, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: marshal metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(d.dir, metaName(key)), meta); err != nil {
		return Entry{}, fmt.Errorf("cache: write metadata: %w", err)
	}
	return entry, nil
}

// Get returns the entry for key when it exists, is younger than ttl
// (ttl <= 0 disables expiry) and every referenced file is readable.
// Unreadable metadata is returned as an error; callers treat it as a miss.
func (d *Disk) Get(ctx context.Context, key string, ttl time.Duration) (Hit, bool, error) {
	if !ValidKey(key) {
		return Hit{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Hit{}, false, err
	}

	entry, ok, err := d.readEntry(key)
	if err != nil || !ok {
		return Hit{}, false, err
	}
	if ttl > 0 && d.now().Sub(entry.CreatedAt) > ttl {
		return Hit{}, false, nil
	}

	images := make([][]byte, 0, len(entry.Files))
	for _, f := range entry.Files {
		b, err := os.ReadFile(filepath.Join(d.dir, filepath.Base(f)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Hit{}, false, nil
			}
			return Hit{}, false, fmt.Errorf("cache: read %s: %w", f, err)
		}
		images = append(images, b)
	}
	return Hit{Entry: entry, Images: images}, true, nil
}

func (d *Disk) readEntry(key string) (Entry, bool, error) {
	raw, err := os.ReadFile(filepath.Join(d.dir, metaName(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: read metadata %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode metadata %s: %w", key, err)
	}
	return entry, true, nil
}

// Invalidate removes the entry for key and any stray images carrying its key.
// It returns the removed file names; unknown keys remove nothing.
func (d *Disk) Invalidate(ctx context.Context, key string) ([]string, error) {
	if !ValidKey(key) {
		return nil, apperr.Validation("invalid cache key")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	removed := make([]string, 0)
	seen := make(map[string]bool)
	remove := func(name string) error {
		name = filepath.Base(name)
		if seen[name] {
			return nil
		}
		seen[name] = true
		err := os.Remove(filepath.Join(d.dir, name))
		switch {
		case err == nil:
			removed = append(removed, name)
			return nil
		case errors.Is(err, os.ErrNotExist):
			return nil
		default:
			return fmt.Errorf("cache: remove %s: %w", name, err)
		}
	}

	// A corrupt record still gets removed below.
	if entry, ok, _ := d.readEntry(key); ok {
		for _, f := range entry.Files {
			if err := remove(f); err != nil {
				return removed, err
			}
		}
	}
	if err := remove(metaName(key)); err != nil {
		return removed, err
	}

	strays, err := filepath.Glob(filepath.Join(d.dir, imagePrefix+key+"_*"))
	if err != nil {
		return removed, fmt.Errorf("cache: glob %s: %w", key, err)
	}
	for _, s := range strays {
		if err := remove(s); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// InvalidateAll removes every metadata and image file in the cache directory.
func (d *Disk) InvalidateAll(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("cache: read dir: %w", err)
	}

	removed := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, metaPrefix) || strings.HasPrefix(name, imagePrefix)) {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("cache: remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// List returns every readable entry, newest first. Corrupt records are skipped.
func (d *Disk) List(ctx context.Context) ([]Entry, error) {
	names, err := filepath.Glob(filepath.Join(d.dir, metaPrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("cache: glob metadata: %w", err)
	}

	out := make([]Entry, 0, len(names))
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(n), metaPrefix), ".json")
		entry, ok, err := d.readEntry(key)
		if err != nil || !ok {
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Evict removes entries older than ttl and, when maxEntries > 0, the oldest
// entries beyond that count. It returns the removed file names.
func (d *Disk) Evict(ctx context.Context, ttl time.Duration, maxEntries int) ([]string, error) {
	entries, err := d.List(ctx)
	if err != nil {
		return nil, err
	}

	now := d.now()
	var removed []string
	kept := 0
	for _, e := range entries {
		expired := ttl > 0 && now.Sub(e.CreatedAt) > ttl
		if !expired && (maxEntries <= 0 || kept < maxEntries) {
			kept++
			continue
		}
		files, err := d.Invalidate(ctx, e.Key)
		removed = append(removed, files...)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-"+filepath.Base(name)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func extensionFor(img []byte) string {
	switch http.DetectContentType(img) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
