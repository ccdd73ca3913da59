package ingest

import (
	"iter"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/mosaic-archive/mosaic/pkg/ingest/dedup"
	"github.com/mosaic-archive/mosaic/pkg/ingest/parsers"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// GenericIngester imports loose files from sources no plugin claims:
// media by extension, text/markdown as knowledge notes, mbox/eml as email.
type GenericIngester struct {
	registry *Registry
}

func NewGenericIngester(registry *Registry) *GenericIngester {
	return &GenericIngester{registry: registry}
}

func (g *GenericIngester) SourceType() timeline.SourceType { return timeline.SourceGeneric }

// DetectionPatterns is empty: the generic ingester never claims a source by
// name, it is the fallback when nothing else matches.
func (g *GenericIngester) DetectionPatterns() []string { return nil }

func (g *GenericIngester) SupportedEntityTypes() []timeline.EntityType {
	return []timeline.EntityType{timeline.EntityMedia, timeline.EntityKnowledgeNote, timeline.EntityEmail}
}

func (g *GenericIngester) Instructions() string {
	return "Point an import at any folder or archive of loose files. " +
		"Images, video and audio become media entries; text and markdown " +
		"become notes; .mbox and .eml files become email."
}

func (g *GenericIngester) DetectContents(path string) (*DetectionResult, error) {
	counts, err := g.registry.DetectGeneric(path)
	if err != nil {
		return nil, err
	}
	return &DetectionResult{
		EntityCounts: counts,
		Metadata:     map[string]string{"detection": "extension"},
	}, nil
}

func (g *GenericIngester) Ingest(entityType timeline.EntityType) (IngestFunc, bool) {
	switch entityType {
	case timeline.EntityMedia:
		return g.ingestMedia, true
	case timeline.EntityKnowledgeNote:
		return g.ingestNotes, true
	case timeline.EntityEmail:
		return g.ingestEmails, true
	}
	return nil, false
}

// filesOfType walks path yielding files whose extension maps to entityType.
func (g *GenericIngester) filesOfType(path string, entityType timeline.EntityType) []string {
	table := g.registry.extensionTable()

	matches := func(p string) bool {
		et, ok := table[strings.ToLower(filepath.Ext(p))]
		return ok && et == entityType
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		if matches(path) {
			return []string{path}
		}
		return nil
	}

	var files []string
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if matches(p) {
			files = append(files, p)
		}
		return nil
	})
	return files
}

func (g *GenericIngester) ingestMedia(path string, filters *Filter) iter.Seq2[timeline.Entity, error] {
	return func(yield func(timeline.Entity, error) bool) {
		for _, file := range g.filesOfType(path, timeline.EntityMedia) {
			info, err := os.Stat(file)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			modTime := info.ModTime().UTC()
			if !filters.Includes(&modTime) {
				continue
			}

			hash, err := dedup.ComputeFileHash(file)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			media := &timeline.Media{
				BaseEntity: timeline.NewBaseEntity(timeline.SourceGeneric, file, hash),
				FilePath:   file,
				FileName:   filepath.Base(file),
				MimeType:   mime.TypeByExtension(filepath.Ext(file)),
				SizeBytes:  info.Size(),
				OccurredAt: &modTime,
			}
			if !yield(media, nil) {
				return
			}
		}
	}
}

func (g *GenericIngester) ingestNotes(path string, filters *Filter) iter.Seq2[timeline.Entity, error] {
	return func(yield func(timeline.Entity, error) bool) {
		for _, file := range g.filesOfType(path, timeline.EntityKnowledgeNote) {
			info, err := os.Stat(file)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			modTime := info.ModTime().UTC()
			if !filters.Includes(&modTime) {
				continue
			}

			content, err := os.ReadFile(file)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			note := &timeline.KnowledgeNote{
				BaseEntity: timeline.NewBaseEntity(timeline.SourceGeneric, file, dedup.ComputeContentHash(content)),
				Title:      noteTitle(file),
				Body:       string(content),
				FilePath:   file,
				OccurredAt: &modTime,
			}
			if !yield(note, nil) {
				return
			}
		}
	}
}

func noteTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (g *GenericIngester) ingestEmails(path string, filters *Filter) iter.Seq2[timeline.Entity, error] {
	return func(yield func(timeline.Entity, error) bool) {
		for _, file := range g.filesOfType(path, timeline.EntityEmail) {
			if strings.EqualFold(filepath.Ext(file), ".eml") {
				raw, err := os.ReadFile(file)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				msg, err := parsers.ParseEmail(raw)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if !filters.Includes(msg.Date) {
					continue
				}
				if !yield(emailEntity(msg), nil) {
					return
				}
				continue
			}

			for msg, err := range parsers.ParseMbox(file) {
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if !filters.Includes(msg.Date) {
					continue
				}
				if !yield(emailEntity(msg), nil) {
					return
				}
			}
		}
	}
}

// emailEntity maps a parsed message onto the Email entity. The content hash
// keys on message id, subject and plain body so the same message imported
// from two mailboxes deduplicates.
func emailEntity(msg *parsers.MboxMessage) *timeline.Email {
	hashInput := msg.MessageID + "\x00" + msg.Subject + "\x00" + msg.BodyPlain
	return &timeline.Email{
		BaseEntity:  timeline.NewBaseEntity(timeline.SourceGeneric, msg.MessageID, dedup.ComputeContentHashString(hashInput)),
		MessageID:   msg.MessageID,
		FromAddress: msg.FromAddress,
		FromName:    msg.FromName,
		ToAddresses: strings.Join(msg.ToAddresses, ", "),
		CcAddresses: strings.Join(msg.CcAddresses, ", "),
		Subject:     msg.Subject,
		BodyPlain:   msg.BodyPlain,
		BodyHTML:    msg.BodyHTML,
		InReplyTo:   msg.InReplyTo,
		OccurredAt:  msg.Date,
	}
}
