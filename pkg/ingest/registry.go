package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
	"gopkg.in/yaml.v3"
)

// defaultExtensionTypes buckets loose files by extension for sources no
// plugin claims.
var defaultExtensionTypes = map[string]timeline.EntityType{
	// Media files
	".jpg":      timeline.EntityMedia,
	".jpeg":     timeline.EntityMedia,
	".png":      timeline.EntityMedia,
	".gif":      timeline.EntityMedia,
	".webp":     timeline.EntityMedia,
	".heic":     timeline.EntityMedia,
	".heif":     timeline.EntityMedia,
	".bmp":      timeline.EntityMedia,
	".tiff":     timeline.EntityMedia,
	".tif":      timeline.EntityMedia,
	".svg":      timeline.EntityMedia,
	".mp4":      timeline.EntityMedia,
	".mov":      timeline.EntityMedia,
	".avi":      timeline.EntityMedia,
	".mkv":      timeline.EntityMedia,
	".webm":     timeline.EntityMedia,
	".mp3":      timeline.EntityMedia,
	".wav":      timeline.EntityMedia,
	".flac":     timeline.EntityMedia,
	".m4a":      timeline.EntityMedia,
	".ogg":      timeline.EntityMedia,
	// Text/notes
	".txt":      timeline.EntityKnowledgeNote,
	".md":       timeline.EntityKnowledgeNote,
	".markdown": timeline.EntityKnowledgeNote,
	".rst":      timeline.EntityKnowledgeNote,
	// Email
	".mbox":     timeline.EntityEmail,
	".eml":      timeline.EntityEmail,
}

// DetectionRules is the optional YAML override for the extension table.
type DetectionRules struct {
	Extensions map[string]string `yaml:"extensions"`
}

// LoadDetectionRules reads extension overrides from a YAML file. An empty
// path returns empty rules.
func LoadDetectionRules(path string) (DetectionRules, error) {
	if path == "" {
		return DetectionRules{}, nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DetectionRules{}, err
	}

	var rules DetectionRules
	if err := yaml.Unmarshal(content, &rules); err != nil {
		return DetectionRules{}, err
	}
	return rules, nil
}

// Registry holds registered ingesters and resolves which one should handle
// a path. It is constructed once at startup, registration happens before
// any run starts, and reads are safe across workers.
type Registry struct {
	mu             sync.RWMutex
	ingesters      []Ingester
	extensionTypes map[string]timeline.EntityType
}

// NewRegistry builds a registry with the default extension table.
func NewRegistry() *Registry {
	ext := make(map[string]timeline.EntityType, len(defaultExtensionTypes))
	for k, v := range defaultExtensionTypes {
		ext[k] = v
	}
	return &Registry{extensionTypes: ext}
}

// ApplyRules merges YAML extension overrides into the table. Unknown entity
// types are logged and skipped.
func (r *Registry) ApplyRules(rules DetectionRules) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ext, typeName := range rules.Extensions {
		et, err := timeline.ParseEntityType(typeName)
		if err != nil {
			logger.Log.WithField("extension", ext).Warn("detection rule references unknown entity type, skipping")
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.extensionTypes[strings.ToLower(ext)] = et
	}
}

// Register adds an ingester. Adding the same instance twice is a no-op;
// registration order is preserved for Detect tie-breaks.
func (r *Registry) Register(ing Ingester) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ingesters {
		if existing == ing {
			return
		}
	}
	r.ingesters = append(r.ingesters, ing)
}

// Unregister removes a previously registered ingester.
func (r *Registry) Unregister(ing Ingester) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.ingesters {
		if existing == ing {
			r.ingesters = append(r.ingesters[:i], r.ingesters[i+1:]...)
			return
		}
	}
}

// All returns the registered ingesters in registration order.
func (r *Registry) All() []Ingester {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ingester, len(r.ingesters))
	copy(out, r.ingesters)
	return out
}

// Detect matches the path's base name against every registered ingester's
// detection patterns, case-insensitively, returning the first match in
// registration order or nil.
func (r *Registry) Detect(path string) Ingester {
	name := filepath.Base(path)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ing := range r.ingesters {
		for _, pattern := range ing.DetectionPatterns() {
			matched, err := regexp.MatchString("(?i)^(?:"+pattern+")", name)
			if err != nil {
				logger.Log.WithError(err).WithField("pattern", pattern).Warn("invalid detection pattern")
				continue
			}
			if matched {
				return ing
			}
		}
	}
	return nil
}

// BySourceType returns the registered ingester with the given source type.
func (r *Registry) BySourceType(sourceType timeline.SourceType) Ingester {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ing := range r.ingesters {
		if ing.SourceType() == sourceType {
			return ing
		}
	}
	return nil
}

// DetectGeneric scans a path (single file or recursive directory walk) and
// buckets files by extension into entity-type counts.
func (r *Registry) DetectGeneric(path string) (map[timeline.EntityType]int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %s: %w", path, err)
	}

	r.mu.RLock()
	table := r.extensionTypes
	r.mu.RUnlock()

	counts := make(map[timeline.EntityType]int)
	if !info.IsDir() {
		if et, ok := table[strings.ToLower(filepath.Ext(path))]; ok {
			counts[et] = 1
		}
		return counts, nil
	}

	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if et, ok := table[strings.ToLower(filepath.Ext(p))]; ok {
			counts[et]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// extensionTable exposes a snapshot of the extension map for the generic
// ingester's file walks.
func (r *Registry) extensionTable() map[string]timeline.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]timeline.EntityType, len(r.extensionTypes))
	for k, v := range r.extensionTypes {
		out[k] = v
	}
	return out
}
