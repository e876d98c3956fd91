package oracle

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitscore-cli/internal/model"
)

// ParseVerdict decodes a scoring completion into a Verdict. Models sometimes
// wrap the JSON in a markdown fence even in JSON mode, so fences are stripped
// before decoding. The score must land in [0, 100].
func ParseVerdict(raw string) (*model.Verdict, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, eris.New("oracle: empty verdict response")
	}

	var v model.Verdict
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&v); err != nil {
		return nil, eris.Wrap(err, "oracle: decode verdict")
	}

	if v.Score < 0 || v.Score > 100 {
		return nil, eris.Errorf("oracle: verdict score %.2f out of range", v.Score)
	}
	if strings.TrimSpace(v.Summary) == "" {
		return nil, eris.New("oracle: verdict missing summary")
	}
	return &v, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop a language tag like "json" on the fence line.
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
