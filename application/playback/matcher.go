package playback

import (
	"context"
	"image"
	"sort"
	"strings"
	"unicode"

	"macroplay-go/infrastructure/capture"
	"macroplay-go/infrastructure/ocr"
)

// MatcherConfig tunes how OCR output is matched against a target phrase.
type MatcherConfig struct {
	// MinConfidence drops OCR words below this confidence (0..100 scale).
	MinConfidence float64

	// MaxJoin is the maximum number of adjacent same-line words joined
	// when looking for multi-word targets.
	MaxJoin int

	// CaseSensitive disables case folding during comparison.
	CaseSensitive bool
}

// DefaultMatcherConfig returns the matching defaults: confidence 60,
// join up to 3 adjacent words, case-insensitive.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		MinConfidence: 60,
		MaxJoin:       3,
		CaseSensitive: false,
	}
}

// shortTargetLen is the normalized length below which a target must match
// a token exactly. Substring matching on very short targets produces too
// many false positives on noisy OCR output.
const shortTargetLen = 5

// Match is the outcome of a text search. Found=false with a nil error
// means the search completed and the target was not on screen.
type Match struct {
	Found bool
	// Text is the raw OCR text that matched.
	Text string
	// Bounds is the matched text's bounding box in absolute screen
	// coordinates.
	Bounds image.Rectangle
}

// Matcher locates a target phrase inside a screen region by capturing it
// and running OCR over the pixels. Infrastructure failures (capture
// errors, unavailable OCR backend) are returned as errors; a target that
// simply is not on screen is Found=false.
type Matcher struct {
	capturer capture.Capturer
	client   ocr.Client
	config   MatcherConfig
}

// NewMatcher creates a matcher over the given capture and OCR backends.
func NewMatcher(capturer capture.Capturer, client ocr.Client, config MatcherConfig) *Matcher {
	if config.MaxJoin < 1 {
		config.MaxJoin = 1
	}
	return &Matcher{capturer: capturer, client: client, config: config}
}

// Find searches rect for target. Word boxes from OCR are relative to the
// captured image and are translated back into screen coordinates.
func (m *Matcher) Find(ctx context.Context, rect image.Rectangle, target string) (Match, error) {
	if !m.client.IsAvailable() {
		return Match{}, ocr.ErrUnavailable
	}

	img, err := m.capturer.Capture(ctx, rect)
	if err != nil {
		return Match{}, err
	}

	words, err := m.client.Recognize(ctx, img)
	if err != nil {
		return Match{}, err
	}

	match, ok := m.search(words, target)
	if !ok {
		return Match{Found: false}, nil
	}

	match.Bounds = match.Bounds.Add(rect.Canon().Min)
	return match, nil
}

// search runs the matching logic over an OCR word list. Exposed to Find
// and to tests; it does not touch the screen.
func (m *Matcher) search(words []ocr.Word, target string) (Match, bool) {
	want := m.normalize(target)
	if want == "" {
		return Match{}, false
	}

	kept := make([]ocr.Word, 0, len(words))
	for _, w := range words {
		if w.Confidence < m.config.MinConfidence {
			continue
		}
		if m.normalize(w.Text) == "" {
			continue
		}
		kept = append(kept, w)
	}

	// Single-word pass first: most targets are one word, and a direct hit
	// gives the tightest bounding box.
	for _, w := range kept {
		if m.tokenMatches(m.normalize(w.Text), want) {
			return Match{Found: true, Text: w.Text, Bounds: w.Box}, true
		}
	}

	if m.config.MaxJoin < 2 {
		return Match{}, false
	}

	for _, line := range groupLines(kept) {
		for width := 2; width <= m.config.MaxJoin; width++ {
			for start := 0; start+width <= len(line); start++ {
				span := line[start : start+width]
				joined := joinNormalized(m, span)
				if m.tokenMatches(joined, want) {
					return Match{
						Found:  true,
						Text:   joinRaw(span),
						Bounds: spanBounds(span),
					}, true
				}
			}
		}
	}

	return Match{}, false
}

// tokenMatches compares a normalized candidate against the normalized
// target. Short targets require equality; longer ones match as a
// substring, which tolerates OCR gluing punctuation onto words.
func (m *Matcher) tokenMatches(candidate, want string) bool {
	if len([]rune(want)) < shortTargetLen {
		return candidate == want
	}
	return strings.Contains(candidate, want)
}

// normalize strips everything but letters and digits, folds case unless
// configured otherwise, and collapses ё to е so the two common Russian
// spellings compare equal.
func (m *Matcher) normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if !m.config.CaseSensitive {
			r = unicode.ToLower(r)
		}
		if r == 'ё' {
			r = 'е'
		} else if r == 'Ё' {
			r = 'Е'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// groupLines buckets words into visual lines by vertical overlap of
// their boxes, then orders each line left to right.
func groupLines(words []ocr.Word) [][]ocr.Word {
	sorted := make([]ocr.Word, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Box.Min.Y != sorted[j].Box.Min.Y {
			return sorted[i].Box.Min.Y < sorted[j].Box.Min.Y
		}
		return sorted[i].Box.Min.X < sorted[j].Box.Min.X
	})

	var lines [][]ocr.Word
	for _, w := range sorted {
		placed := false
		for i := range lines {
			if sameLine(lines[i][len(lines[i])-1].Box, w.Box) {
				lines[i] = append(lines[i], w)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, []ocr.Word{w})
		}
	}

	for i := range lines {
		sort.Slice(lines[i], func(a, b int) bool {
			return lines[i][a].Box.Min.X < lines[i][b].Box.Min.X
		})
	}
	return lines
}

// sameLine reports whether two boxes overlap vertically by at least half
// of the shorter box's height.
func sameLine(a, b image.Rectangle) bool {
	top := max(a.Min.Y, b.Min.Y)
	bottom := min(a.Max.Y, b.Max.Y)
	overlap := bottom - top
	if overlap <= 0 {
		return false
	}
	shorter := min(a.Dy(), b.Dy())
	return overlap*2 >= shorter
}

func joinNormalized(m *Matcher, span []ocr.Word) string {
	var b strings.Builder
	for _, w := range span {
		b.WriteString(m.normalize(w.Text))
	}
	return b.String()
}

func joinRaw(span []ocr.Word) string {
	parts := make([]string, len(span))
	for i, w := range span {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

func spanBounds(span []ocr.Word) image.Rectangle {
	bounds := span[0].Box
	for _, w := range span[1:] {
		bounds = bounds.Union(w.Box)
	}
	return bounds
}
