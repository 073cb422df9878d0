package moderation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Thresholds are the per-category cut-offs. A score strictly above the
// threshold marks the media unsafe.
type Thresholds struct {
	Sexual    float64
	Weapon    float64
	Drugs     float64
	Gore      float64
	Offensive float64
}

var DefaultThresholds = Thresholds{
	Sexual:    0.5,
	Weapon:    0.7,
	Drugs:     0.7,
	Gore:      0.5,
	Offensive: 0.7,
}

// score accepts a bare probability, an object with "prob", or an object with
// "classes" (the maximum class wins). null and absent both read as 0.
type score float64

func (s *score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if data[0] != '{' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("score: %w", err)
		}
		*s = score(f)
		return nil
	}
	var obj struct {
		Prob    *float64           `json:"prob"`
		Classes map[string]float64 `json:"classes"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	var v float64
	if obj.Prob != nil {
		v = *obj.Prob
	}
	for _, c := range obj.Classes {
		if c > v {
			v = c
		}
	}
	*s = score(v)
	return nil
}

type nudityScores struct {
	SexualActivity float64 `json:"sexual_activity"`
	SexualDisplay  float64 `json:"sexual_display"`
	Erotica        float64 `json:"erotica"`
	VerySuggestive float64 `json:"very_suggestive"`
	Suggestive     float64 `json:"suggestive"`
}

func (n *nudityScores) max() float64 {
	if n == nil {
		return 0
	}
	m := n.SexualActivity
	for _, v := range []float64{n.SexualDisplay, n.Erotica, n.VerySuggestive, n.Suggestive} {
		if v > m {
			m = v
		}
	}
	return m
}

// scores is the shared shape of an image result and of one video frame.
type scores struct {
	Nudity    *nudityScores `json:"nudity"`
	Weapon    score         `json:"weapon"`
	Drugs     score         `json:"drugs"`
	Gore      score         `json:"gore"`
	Offensive score         `json:"offensive"`
}

// evaluate returns an empty reason when every category is under its threshold.
func (s scores) evaluate(th Thresholds) string {
	switch {
	case s.Nudity.max() > th.Sexual:
		return "nudity or sexual content detected"
	case float64(s.Weapon) > th.Weapon:
		return "weapon detected"
	case float64(s.Drugs) > th.Drugs:
		return "drugs detected"
	case float64(s.Gore) > th.Gore:
		return "gore or violence detected"
	case float64(s.Offensive) > th.Offensive:
		return "offensive content detected"
	}
	return ""
}

type apiError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type imageResponse struct {
	Status string    `json:"status"`
	Error  *apiError `json:"error"`
	scores
}

type frame struct {
	Info struct {
		Position float64 `json:"position"`
	} `json:"info"`
	scores
}

type videoResponse struct {
	Status string    `json:"status"`
	Error  *apiError `json:"error"`
	Data   *struct {
		Frames []frame `json:"frames"`
	} `json:"data"`
}
