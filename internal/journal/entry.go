package journal

import (
	"encoding/json"
	"strings"
	"time"

	perrors "github.com/p-blackswan/buddy/internal/errors"
)

// Mood is one selectable feeling of the mood check.
type Mood string

const (
	Happy   Mood = "Happy"
	Sad     Mood = "Sad"
	Angry   Mood = "Angry"
	Worried Mood = "Worried"
	Tired   Mood = "Tired"
)

// Moods lists the known moods in display order.
var Moods = []Mood{Happy, Sad, Angry, Worried, Tired}

// ParseMood matches s case-insensitively against the known moods.
func ParseMood(s string) (Mood, error) {
	s = strings.TrimSpace(s)
	for _, m := range Moods {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", perrors.Invalid("mood %q is not known", s)
}

// MoodEntry is one submitted mood check.
type MoodEntry struct {
	Moods []Mood    `json:"moods"`
	Note  string    `json:"note,omitempty"`
	Date  time.Time `json:"date"`
}

// UnmarshalJSON accepts the legacy single-mood shape {"mood": "Happy"} and
// normalizes it to a one-element list.
func (e *MoodEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Moods []Mood    `json:"moods"`
		Mood  Mood      `json:"mood"`
		Note  string    `json:"note"`
		Date  time.Time `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Moods) == 0 && raw.Mood != "" {
		raw.Moods = []Mood{raw.Mood}
	}
	*e = MoodEntry{Moods: raw.Moods, Note: raw.Note, Date: raw.Date}
	return nil
}

// normalize validates the entry and collapses duplicate moods, keeping the
// first occurrence of each.
func (e MoodEntry) normalize() (MoodEntry, error) {
	if len(e.Moods) == 0 {
		return e, perrors.Invalid("mood entry: at least one mood is required")
	}
	seen := make(map[Mood]bool, len(e.Moods))
	moods := make([]Mood, 0, len(e.Moods))
	for _, m := range e.Moods {
		parsed, err := ParseMood(string(m))
		if err != nil {
			return e, err
		}
		if seen[parsed] {
			continue
		}
		seen[parsed] = true
		moods = append(moods, parsed)
	}
	e.Moods = moods
	e.Note = strings.TrimSpace(e.Note)
	return e, nil
}

// ReflectionCategory tells gratitude notes apart from free reflections.
type ReflectionCategory string

const (
	CategoryGratitude ReflectionCategory = "gratitude"
	CategoryGeneral   ReflectionCategory = "general"
)

// ReflectionEntry is a saved answer to a reflection or gratitude prompt.
type ReflectionEntry struct {
	Prompt   string             `json:"prompt"`
	Text     string             `json:"text"`
	Date     time.Time          `json:"date"`
	Category ReflectionCategory `json:"category"`
}

func (e ReflectionEntry) normalize() (ReflectionEntry, error) {
	e.Text = strings.TrimSpace(e.Text)
	if e.Text == "" {
		return e, perrors.Invalid("reflection entry: text is empty")
	}
	switch e.Category {
	case "":
		e.Category = CategoryGeneral
	case CategoryGratitude, CategoryGeneral:
	default:
		return e, perrors.Invalid("reflection entry: unknown category %q", e.Category)
	}
	return e, nil
}

// StoryEntry is a finished co-written story.
type StoryEntry struct {
	Title   string    `json:"title"`
	Content []string  `json:"content"`
	Date    time.Time `json:"date"`
}

func (e StoryEntry) normalize() (StoryEntry, error) {
	if len(e.Content) == 0 {
		return e, perrors.Invalid("story entry: content is empty")
	}
	e.Content = append([]string(nil), e.Content...)
	return e, nil
}

// Kind discriminates timeline entries.
type Kind string

const (
	KindMood       Kind = "mood"
	KindReflection Kind = "reflection"
	KindStory      Kind = "story"
)

// Entry is one element of the unified timeline. Exactly one of the payload
// pointers is set, matching Kind.
type Entry struct {
	Kind       Kind             `json:"kind"`
	Mood       *MoodEntry       `json:"mood,omitempty"`
	Reflection *ReflectionEntry `json:"reflection,omitempty"`
	Story      *StoryEntry      `json:"story,omitempty"`
}

// Date returns the timestamp of the wrapped entry.
func (e Entry) Date() time.Time {
	switch e.Kind {
	case KindMood:
		return e.Mood.Date
	case KindReflection:
		return e.Reflection.Date
	case KindStory:
		return e.Story.Date
	}
	return time.Time{}
}
