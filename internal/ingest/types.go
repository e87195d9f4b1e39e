package ingest

// Canonical field keys, in the order used when a header has to be synthesized.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPersonality = "personality"
	FieldPrompt      = "prompt"
	FieldTags        = "tags"
	FieldType        = "type"
	FieldSource      = "source"
	FieldCreator     = "creator"
	FieldImageURL    = "imageUrl"
	FieldIsOfficial  = "isOfficial"
)

// CanonicalOrder is the column order for synthesized headers.
var CanonicalOrder = []string{
	FieldName,
	FieldDescription,
	FieldPersonality,
	FieldPrompt,
	FieldTags,
	FieldType,
	FieldSource,
	FieldCreator,
	FieldImageURL,
	FieldIsOfficial,
}

// LocalizedAliases maps each canonical key to its localized header name.
var LocalizedAliases = map[string]string{
	FieldName:        "角色名",
	FieldDescription: "角色描述",
	FieldPersonality: "性格特点",
	FieldPrompt:      "提示词",
	FieldTags:        "标签",
	FieldType:        "角色类型",
	FieldSource:      "来源作品",
	FieldCreator:     "创作者",
	FieldImageURL:    "头像URL",
	FieldIsOfficial:  "是否官方",
}

// CharacterType is the closed set of record types.
type CharacterType string

const (
	TypeGame        CharacterType = "game"
	TypeAnime       CharacterType = "anime"
	TypeRealPerson  CharacterType = "real-person"
	TypeVirtualIdol CharacterType = "virtual-idol"
	TypeOther       CharacterType = "other"
)

// Category values derived from IsOfficial.
const (
	CategoryOfficial  = "official"
	CategoryCommunity = "community"
)

// ReviewPending is the review status of every freshly imported record.
const ReviewPending = "pending"

// Record is one canonical character. The pipeline never mutates a Record
// after handing it out.
type Record struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Personality  string        `json:"personality"`
	Prompt       string        `json:"prompt"`
	Tags         []string      `json:"tags"`
	Type         CharacterType `json:"type"`
	Source       string        `json:"source"`
	Creator      string        `json:"creator"`
	ImageURL     string        `json:"imageUrl"`
	IsOfficial   bool          `json:"isOfficial"`
	Category     string        `json:"category"`
	IsFavorited  bool          `json:"isFavorited"`
	ReviewStatus string        `json:"reviewStatus"`
}

// RawRow is the ordered list of cleaned fields from one logical row.
type RawRow []string

// LogicalRow is one record's worth of delimited text. Text may span several
// physical lines when a quoted field contains line breaks.
type LogicalRow struct {
	Text string
	// Line is the 1-based physical line the row starts on.
	Line int
}
