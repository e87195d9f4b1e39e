package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Default values applied when a field is absent or blank.
const (
	DefaultPersonality = "friendly, helpful"
	DefaultSource      = "导入数据"
	DefaultCreator     = "数据导入"
	DefaultTag         = "导入角色"
)

// DefaultImages are the placeholder avatars handed out when a record has no
// image of its own.
var DefaultImages = []string{
	"/src/assets/character-1.jpg",
	"/src/assets/character-2.jpg",
	"/src/assets/character-3.jpg",
	"/src/assets/character-4.jpg",
	"/src/assets/character-5.jpg",
}

// errNotScalar marks a JSON object or array found where text was expected.
var errNotScalar = errors.New("value is not a scalar")

// typeSynonyms maps folded spellings onto the closed type set.
var typeSynonyms = map[string]CharacterType{
	"游戏":           TypeGame,
	"game":         TypeGame,
	"动漫":           TypeAnime,
	"动画":           TypeAnime,
	"anime":        TypeAnime,
	"真人":           TypeRealPerson,
	"real":         TypeRealPerson,
	"real-person":  TypeRealPerson,
	"虚拟偶像":         TypeVirtualIdol,
	"virtual":      TypeVirtualIdol,
	"vtuber":       TypeVirtualIdol,
	"virtual-idol": TypeVirtualIdol,
	"其他":           TypeOther,
	"other":        TypeOther,
}

// tagSeparators split a joined tag string.
const tagSeparators = ",，;；|｜"

// ImagePicker chooses a placeholder image.
type ImagePicker interface {
	Pick() string
}

// ImagePickerFunc adapts a function to ImagePicker.
type ImagePickerFunc func() string

// Pick implements ImagePicker.
func (f ImagePickerFunc) Pick() string { return f() }

// RandomImages picks uniformly from DefaultImages.
var RandomImages ImagePicker = ImagePickerFunc(func() string {
	return DefaultImages[rand.IntN(len(DefaultImages))]
})

// SeededImages is a reproducible picker over images. It is safe for
// concurrent use.
type SeededImages struct {
	mu     sync.Mutex
	rng    *rand.Rand
	images []string
}

// NewSeededImages returns a picker whose sequence depends only on seed.
// A nil or empty images slice falls back to DefaultImages.
func NewSeededImages(seed uint64, images []string) *SeededImages {
	if len(images) == 0 {
		images = DefaultImages
	}
	return &SeededImages{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		images: append([]string(nil), images...),
	}
}

// Pick implements ImagePicker.
func (s *SeededImages) Pick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[s.rng.IntN(len(s.images))]
}

// Defaults holds the fill-in values for absent text fields.
type Defaults struct {
	Personality string
	Source      string
	Creator     string
	Tag         string
}

// StandardDefaults returns the built-in defaults.
func StandardDefaults() Defaults {
	return Defaults{
		Personality: DefaultPersonality,
		Source:      DefaultSource,
		Creator:     DefaultCreator,
		Tag:         DefaultTag,
	}
}

// Normalizer maps a raw field map onto a Record.
type Normalizer struct {
	Defaults Defaults
	Images   ImagePicker
	NewID    func() string
}

// NewNormalizer returns a Normalizer with the standard defaults, uniform
// random images and UUID identifiers.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Defaults: StandardDefaults(),
		Images:   RandomImages,
		NewID:    uuid.NewString,
	}
}

// Normalize builds a Record from raw. Keys are canonical field keys or
// their localized aliases; the canonical key wins when both are filled.
// It returns ErrMissingName when the name is blank, and an error wrapping
// errNotScalar when a text field holds an object or array.
func (n *Normalizer) Normalize(raw map[string]any) (Record, error) {
	var rec Record
	var err error

	if rec.Name, err = n.text(raw, FieldName, ""); err != nil {
		return Record{}, err
	}
	if rec.Name == "" {
		return Record{}, ErrMissingName
	}
	if rec.Description, err = n.text(raw, FieldDescription, ""); err != nil {
		return Record{}, err
	}
	if rec.Personality, err = n.text(raw, FieldPersonality, n.Defaults.Personality); err != nil {
		return Record{}, err
	}
	if rec.Prompt, err = n.text(raw, FieldPrompt, ""); err != nil {
		return Record{}, err
	}
	if rec.Source, err = n.text(raw, FieldSource, n.Defaults.Source); err != nil {
		return Record{}, err
	}
	if rec.Creator, err = n.text(raw, FieldCreator, n.Defaults.Creator); err != nil {
		return Record{}, err
	}
	if rec.ImageURL, err = n.text(raw, FieldImageURL, ""); err != nil {
		return Record{}, err
	}
	if rec.ImageURL == "" && n.Images != nil {
		rec.ImageURL = n.Images.Pick()
	}

	if rec.Tags, err = parseTags(lookup(raw, FieldTags)); err != nil {
		return Record{}, err
	}
	if len(rec.Tags) == 0 {
		rec.Tags = []string{n.Defaults.Tag}
	}

	typ, err := n.text(raw, FieldType, "")
	if err != nil {
		return Record{}, err
	}
	rec.Type = ParseType(typ)

	rec.IsOfficial = parseOfficial(lookup(raw, FieldIsOfficial))
	rec.Category = CategoryCommunity
	if rec.IsOfficial {
		rec.Category = CategoryOfficial
	}
	rec.IsFavorited = false
	rec.ReviewStatus = ReviewPending

	if n.NewID != nil {
		rec.ID = n.NewID()
	}
	return rec, nil
}

// text resolves a scalar field through canonical key, localized alias and
// fallback, trimming the result.
func (n *Normalizer) text(raw map[string]any, key, fallback string) (string, error) {
	s, err := scalar(lookup(raw, key))
	if err != nil {
		return "", fmt.Errorf("field %s: %w", key, err)
	}
	if s = strings.TrimSpace(s); s != "" {
		return s, nil
	}
	return strings.TrimSpace(fallback), nil
}

// lookup returns the first present, non-blank value among key and its
// localized alias. A present false boolean counts as a value.
func lookup(raw map[string]any, key string) any {
	for _, k := range [...]string{key, LocalizedAliases[key]} {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func scalar(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	case map[string]any, []any, []string:
		return "", errNotScalar
	default:
		return "", fmt.Errorf("%w: %T", errNotScalar, v)
	}
}

// parseTags accepts a joined string or a list. Values are trimmed, blanks
// dropped and duplicates removed, keeping first-seen order.
func parseTags(v any) ([]string, error) {
	var parts []string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		parts = t
	case []any:
		parts = make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalar(item)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", FieldTags, err)
			}
			parts = append(parts, s)
		}
	default:
		s, err := scalar(t)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", FieldTags, err)
		}
		parts = strings.FieldsFunc(s, func(r rune) bool {
			return strings.ContainsRune(tagSeparators, r)
		})
	}

	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		tags = append(tags, p)
	}
	return tags, nil
}

// ParseType folds s onto the closed type set, defaulting to TypeOther.
func ParseType(s string) CharacterType {
	if t, ok := typeSynonyms[foldName(s)]; ok {
		return t
	}
	return TypeOther
}

// parseOfficial passes booleans through and accepts "true" in any case,
// "是" and "1" as true. Everything else is false.
func parseOfficial(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return strings.EqualFold(s, "true") || s == "是" || s == "1"
	default:
		return false
	}
}
