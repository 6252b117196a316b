package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerKind tags the Answer union.
type AnswerKind string

const (
	AnswerText   AnswerKind = "text"
	AnswerChoice AnswerKind = "choice"
)

// Answer is either a free-text answer or a selected option.
type Answer struct {
	Kind  AnswerKind
	Value string
}

// Text builds a free-text answer.
func Text(s string) Answer { return Answer{Kind: AnswerText, Value: s} }

// Choice builds a selected-option answer.
func Choice(s string) Answer { return Answer{Kind: AnswerChoice, Value: s} }

func (a Answer) String() string { return a.Value }

// MarshalJSON writes {"kind": ..., "value": ...}.
func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  AnswerKind `json:"kind"`
		Value string     `json:"value"`
	}{a.Kind, a.Value})
}

// UnmarshalJSON accepts the tagged object form as well as the bare string and
// string array forms older clients submit. Arrays become a single choice.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty answer")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Text(s)
		return nil
	case '[':
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*a = Choice(strings.Join(values, ", "))
		return nil
	case '{':
		var tagged struct {
			Kind  AnswerKind `json:"kind"`
			Value string     `json:"value"`
		}
		if err := json.Unmarshal(data, &tagged); err != nil {
			return err
		}
		switch tagged.Kind {
		case AnswerText, AnswerChoice:
		case "":
			tagged.Kind = AnswerText
		default:
			return fmt.Errorf("unknown answer kind %q", tagged.Kind)
		}
		*a = Answer{Kind: tagged.Kind, Value: tagged.Value}
		return nil
	default:
		return fmt.Errorf("unsupported answer value %s", string(data))
	}
}

// Answers maps question ids to captured answers.
type Answers map[string]Answer

// Scan implements sql.Scanner
func (a *Answers) Scan(src interface{}) error {
	out := Answers{}
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan answers: %w", err)
	}
	*a = out
	return nil
}

// Value implements driver.Valuer
func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return valueJSON(map[string]Answer(a))
}
