package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/leadgen-pipeline/internal/ai"
)

// Verdict is one model score keyed by batch index.
type Verdict struct {
	ID     int
	Score  int
	Reason string
}

type rawVerdict struct {
	ID      json.RawMessage `json:"id"`
	AIScore json.RawMessage `json:"ai_score"`
	Score   json.RawMessage `json:"score"`
	Reason  string          `json:"reason"`
}

// ErrNoArray is returned when the model output holds no JSON array.
var ErrNoArray = errors.New("no JSON array in model output")

// ParseVerdicts strips markdown fences, extracts the outermost JSON array, and
// decodes it. Entries without a usable id or score are dropped.
func ParseVerdicts(content string) ([]Verdict, error) {
	body, err := ExtractArray(ai.StripFences(content))
	if err != nil {
		return nil, err
	}
	var raws []rawVerdict
	if err := json.Unmarshal([]byte(body), &raws); err != nil {
		return nil, fmt.Errorf("decode verdicts: %w", err)
	}
	out := make([]Verdict, 0, len(raws))
	for _, r := range raws {
		id, ok := number(r.ID)
		if !ok {
			continue
		}
		scoreRaw := r.AIScore
		if len(scoreRaw) == 0 {
			scoreRaw = r.Score
		}
		score, ok := number(scoreRaw)
		if !ok {
			continue
		}
		out = append(out, Verdict{ID: id, Score: score, Reason: r.Reason})
	}
	return out, nil
}

// ExtractArray returns the text between the first '[' and the last ']'.
func ExtractArray(s string) (string, error) {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end <= start {
		return "", ErrNoArray
	}
	return s[start : end+1], nil
}

// number accepts JSON numbers and numeric strings, rounding fractions.
func number(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.Abs(f) > 1e9 {
		return 0, false
	}
	return int(math.Round(f)), true
}
