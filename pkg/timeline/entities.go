package timeline

import (
	"time"

	"github.com/google/uuid"
)

// Entity is the minimal contract the ingestion coordinator and the
// deduplicator depend on. Every concrete timeline record satisfies it.
type Entity interface {
	EntityID() uuid.UUID
	EntityType() EntityType
	// ContentHash returns the SHA-256 digest of the entity's semantic
	// content, or "" when the entity has no stable content to hash.
	ContentHash() string
}

// BaseEntity carries the columns shared by every imported record.
type BaseEntity struct {
	ID         uuid.UUID  `json:"id" gorm:"primaryKey;column:id"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at"`
	SourceType SourceType `json:"source_type" gorm:"column:source_type"`
	SourceID   string     `json:"source_id,omitempty" gorm:"column:source_id"`
	Hash       string     `json:"content_hash,omitempty" gorm:"column:content_hash;index"`
}

func (b BaseEntity) EntityID() uuid.UUID { return b.ID }
func (b BaseEntity) ContentHash() string { return b.Hash }

// NewBaseEntity populates identity and timestamps for a freshly parsed entity.
func NewBaseEntity(sourceType SourceType, sourceID, contentHash string) BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:         uuid.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
		SourceType: sourceType,
		SourceID:   sourceID,
		Hash:       contentHash,
	}
}

type Media struct {
	BaseEntity
	FilePath   string     `json:"file_path" gorm:"column:file_path"`
	FileName   string     `json:"file_name" gorm:"column:file_name"`
	MimeType   string     `json:"mime_type,omitempty" gorm:"column:mime_type"`
	SizeBytes  int64      `json:"size_bytes" gorm:"column:size_bytes"`
	OccurredAt *time.Time `json:"occurred_at,omitempty" gorm:"column:occurred_at;index"`
}

func (Media) TableName() string      { return "media" }
func (Media) EntityType() EntityType { return EntityMedia }

type Email struct {
	BaseEntity
	MessageID   string     `json:"message_id,omitempty" gorm:"column:message_id;index"`
	FromAddress string     `json:"from_address,omitempty" gorm:"column:from_address"`
	FromName    string     `json:"from_name,omitempty" gorm:"column:from_name"`
	ToAddresses string     `json:"to_addresses,omitempty" gorm:"column:to_addresses"`
	CcAddresses string     `json:"cc_addresses,omitempty" gorm:"column:cc_addresses"`
	Subject     string     `json:"subject,omitempty" gorm:"column:subject"`
	BodyPlain   string     `json:"body_plain,omitempty" gorm:"column:body_plain"`
	BodyHTML    string     `json:"body_html,omitempty" gorm:"column:body_html"`
	InReplyTo   string     `json:"in_reply_to,omitempty" gorm:"column:in_reply_to"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty" gorm:"column:occurred_at;index"`
}

func (Email) TableName() string      { return "emails" }
func (Email) EntityType() EntityType { return EntityEmail }

type ChatMessage struct {
	BaseEntity
	Conversation string     `json:"conversation,omitempty" gorm:"column:conversation;index"`
	Sender       string     `json:"sender,omitempty" gorm:"column:sender"`
	Body         string     `json:"body" gorm:"column:body"`
	OccurredAt   *time.Time `json:"occurred_at,omitempty" gorm:"column:occurred_at;index"`
}

func (ChatMessage) TableName() string      { return "chat_messages" }
func (ChatMessage) EntityType() EntityType { return EntityChatMessage }

type KnowledgeNote struct {
	BaseEntity
	Title      string     `json:"title,omitempty" gorm:"column:title"`
	Body       string     `json:"body" gorm:"column:body"`
	FilePath   string     `json:"file_path,omitempty" gorm:"column:file_path"`
	OccurredAt *time.Time `json:"occurred_at,omitempty" gorm:"column:occurred_at;index"`
}

func (KnowledgeNote) TableName() string      { return "knowledge_notes" }
func (KnowledgeNote) EntityType() EntityType { return EntityKnowledgeNote }

type SocialPost struct {
	BaseEntity
	Platform   string     `json:"platform,omitempty" gorm:"column:platform"`
	Title      string     `json:"title,omitempty" gorm:"column:title"`
	Body       string     `json:"body,omitempty" gorm:"column:body"`
	URL        string     `json:"url,omitempty" gorm:"column:url"`
	OccurredAt *time.Time `json:"occurred_at,omitempty" gorm:"column:occurred_at;index"`
}

func (SocialPost) TableName() string      { return "social_posts" }
func (SocialPost) EntityType() EntityType { return EntitySocialPost }

type Transaction struct {
	BaseEntity
	Account     string     `json:"account,omitempty" gorm:"column:account"`
	Payee       string     `json:"payee,omitempty" gorm:"column:payee"`
	AmountCents int64      `json:"amount_cents" gorm:"column:amount_cents"`
	Currency    string     `json:"currency,omitempty" gorm:"column:currency"`
	Memo        string     `json:"memo,omitempty" gorm:"column:memo"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty" gorm:"column:occurred_at;index"`
}

func (Transaction) TableName() string      { return "transactions" }
func (Transaction) EntityType() EntityType { return EntityTransaction }
