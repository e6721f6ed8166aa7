package filter

import "fmt"

// MaxConditions is the maximum number of conditions in one expression.
const MaxConditions = 32

// Filterable episode metadata fields.
const (
	FieldPodcastID = "podcast_id"
	FieldCategory  = "category"
	FieldLanguage  = "language"
)

// Expression is a conjunction of equality conditions. The empty expression matches everything.
type Expression struct {
	must []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must ...Condition) (Expression, error) {
	if len(must) > MaxConditions {
		return Expression{}, fmt.Errorf("too many filter conditions (max %d)", MaxConditions)
	}
	return Expression{must: must}, nil
}

// Must returns the conditions that every hit satisfies.
func (e Expression) Must() []Condition { return e.must }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// Condition is a single equality clause: a tag match or a numeric value.
type Condition struct {
	key     string
	match   string
	numeric *int64
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewEquals creates a numeric equality condition.
func NewEquals(key string, value int64) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, numeric: &value}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Numeric returns the numeric value, nil for tag matches.
func (c Condition) Numeric() *int64 { return c.numeric }

// IsMatch reports whether this is a tag match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsNumeric reports whether this is a numeric equality condition.
func (c Condition) IsNumeric() bool { return c.numeric != nil }

// Episode is the optional metadata filter of a query.
// Nil and empty-string fields impose no constraint.
type Episode struct {
	PodcastID *int64  `json:"podcast_id,omitempty"`
	Category  *string `json:"category,omitempty"`
	Language  *string `json:"language,omitempty"`
}

// Compile turns the populated fields into a conjunctive Expression.
func (f Episode) Compile() Expression {
	var must []Condition
	if f.PodcastID != nil {
		id := *f.PodcastID
		must = append(must, Condition{key: FieldPodcastID, numeric: &id})
	}
	if f.Category != nil && *f.Category != "" {
		must = append(must, Condition{key: FieldCategory, match: *f.Category})
	}
	if f.Language != nil && *f.Language != "" {
		must = append(must, Condition{key: FieldLanguage, match: *f.Language})
	}
	return Expression{must: must}
}

// Matches reports whether metadata values satisfy the expression.
// Backends without a native pre-filter use it to post-filter.
func (e Expression) Matches(podcastID int64, tags map[string]string) bool {
	for _, c := range e.must {
		switch {
		case c.IsNumeric():
			if c.key != FieldPodcastID || *c.numeric != podcastID {
				return false
			}
		case c.IsMatch():
			if tags[c.key] != c.match {
				return false
			}
		}
	}
	return true
}
