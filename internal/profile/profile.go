// Package profile holds the behavioral profile collected by an interview: the
// fixed trait buckets, answer weights and the score arithmetic shared by the
// interview machine and the identifier generator.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Trait is one of the four fixed scoring buckets. The declaration order is
// also the tie-break priority when picking a dominant trait.
type Trait int

const (
	Analytical Trait = iota
	Empathic
	Aware
	Resolute
)

// TraitCount is the number of trait buckets.
const TraitCount = 4

// QuestionCount is the length of the standard questionnaire.
const QuestionCount = 8

// MaxScore caps a single trait score.
const MaxScore = 8

var traitNames = [TraitCount]string{"analytical", "empathic", "aware", "resolute"}

// Traits lists every trait in priority order.
var Traits = [TraitCount]Trait{Analytical, Empathic, Aware, Resolute}

func (t Trait) String() string {
	if t < 0 || int(t) >= TraitCount {
		return fmt.Sprintf("trait(%d)", int(t))
	}
	return traitNames[t]
}

// ParseTrait is the inverse of Trait.String.
func ParseTrait(s string) (Trait, error) {
	for i, name := range traitNames {
		if strings.EqualFold(s, name) {
			return Trait(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trait %q", s)
}

// TraitFor maps a standard question index to its bucket: two questions per
// trait, in priority order.
func TraitFor(questionIndex int) Trait {
	return Trait(questionIndex / 2)
}

// Choice is a participant's multiple-choice answer.
type Choice string

const (
	Affirmative Choice = "affirmative"
	Ambivalent  Choice = "ambivalent"
	Negative    Choice = "negative"
)

// Weight returns the score increment for a choice.
func (c Choice) Weight() int {
	switch c {
	case Affirmative:
		return 2
	case Ambivalent:
		return 1
	default:
		return 0
	}
}

// ParseChoice accepts the canonical names plus the short button values the
// gateway forwards ("yes", "maybe", "no").
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "affirmative", "yes", "y":
		return Affirmative, nil
	case "ambivalent", "maybe", "unsure":
		return Ambivalent, nil
	case "negative", "no", "n":
		return Negative, nil
	default:
		return "", fmt.Errorf("unknown choice %q", s)
	}
}

// Answer is one recorded multiple-choice answer.
type Answer struct {
	QuestionIndex int       `json:"question_index"`
	Choice        Choice    `json:"choice"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// Scores holds one score per trait, indexed by Trait.
type Scores [TraitCount]int

// Add increments a trait, clamping at MaxScore. Scores never decrease.
func (s *Scores) Add(t Trait, n int) {
	if n <= 0 {
		return
	}
	s[t] += n
	if s[t] > MaxScore {
		s[t] = MaxScore
	}
}

// Total sums all trait scores.
func (s Scores) Total() int {
	total := 0
	for _, v := range s {
		total += v
	}
	return total
}

// Dominant returns the highest-scoring trait. Ties go to the earlier trait in
// priority order.
func (s Scores) Dominant() Trait {
	best := Analytical
	for _, t := range Traits {
		if s[t] > s[best] {
			best = t
		}
	}
	return best
}

// Secondary returns the highest-scoring trait other than the dominant one,
// using the same tie-break.
func (s Scores) Secondary() Trait {
	dom := s.Dominant()
	second := Trait(-1)
	for _, t := range Traits {
		if t == dom {
			continue
		}
		if second < 0 || s[t] > s[second] {
			second = t
		}
	}
	return second
}

// MarshalJSON writes scores keyed by trait name.
func (s Scores) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, TraitCount)
	for _, t := range Traits {
		m[t.String()] = s[t]
	}
	return json.Marshal(m)
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Scores
	for name, v := range m {
		t, err := ParseTrait(name)
		if err != nil {
			return err
		}
		out[t] = v
	}
	*s = out
	return nil
}

// Profile is the snapshot an identifier is derived from.
type Profile struct {
	Scores  Scores   `json:"scores"`
	Answers []Answer `json:"answers,omitempty"`
}
