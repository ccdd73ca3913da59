package timeline

import "fmt"

// SourceType identifies the origin system of imported data.
type SourceType string

const (
	SourceGoogleTakeout SourceType = "google_takeout"
	SourceReddit        SourceType = "reddit"
	SourceWhatsApp      SourceType = "whatsapp"
	SourceYNAB          SourceType = "ynab"
	SourceGeneric       SourceType = "generic" // bulk import of loose files
	SourceManual        SourceType = "manual"  // user-created content
)

// EntityType is the canonical set of importable record categories used
// across ingestion, linking and search.
type EntityType string

const (
	EntityMedia           EntityType = "media"
	EntityChatMessage     EntityType = "chat_message"
	EntityEmail           EntityType = "email"
	EntitySocialPost      EntityType = "social_post"
	EntitySocialComment   EntityType = "social_comment"
	EntityKnowledgeNote   EntityType = "knowledge_note"
	EntityCalendarEvent   EntityType = "calendar_event"
	EntityTransaction     EntityType = "transaction"
	EntityLocationVisit   EntityType = "location_visit"
	EntityBrowsingHistory EntityType = "browsing_history"
	EntityBookmark        EntityType = "bookmark"
	EntityPerson          EntityType = "person"
)

var allEntityTypes = map[EntityType]struct{}{
	EntityMedia:           {},
	EntityChatMessage:     {},
	EntityEmail:           {},
	EntitySocialPost:      {},
	EntitySocialComment:   {},
	EntityKnowledgeNote:   {},
	EntityCalendarEvent:   {},
	EntityTransaction:     {},
	EntityLocationVisit:   {},
	EntityBrowsingHistory: {},
	EntityBookmark:        {},
	EntityPerson:          {},
}

// ParseEntityType validates a wire-format entity type code.
func ParseEntityType(value string) (EntityType, error) {
	et := EntityType(value)
	if _, ok := allEntityTypes[et]; !ok {
		return "", fmt.Errorf("unknown entity type: %q", value)
	}
	return et, nil
}
