package survey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

var ErrInvalidAnswer = errors.New("invalid answer")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAnswer normalizes a raw answer against the question it answers.
func ValidateAnswer(q model.Question, value string) (model.Answer, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Answer{}, fmt.Errorf("%w: question %s requires an answer", ErrInvalidAnswer, q.ID)
	}
	if !q.Type.IsChoice() {
		return model.Text(value), nil
	}
	if contains(q.Options, value) {
		return model.Choice(value), nil
	}
	// Legacy checkbox answers arrive as options joined by ", ".
	if q.Type != model.QuestionCheckbox {
		return model.Answer{}, fmt.Errorf("%w: %q is not an option of question %s", ErrInvalidAnswer, value, q.ID)
	}
	for _, part := range strings.Split(value, ", ") {
		if !contains(q.Options, part) {
			return model.Answer{}, fmt.Errorf("%w: %q is not an option of question %s", ErrInvalidAnswer, part, q.ID)
		}
	}
	return model.Choice(value), nil
}

// ValidateAnswers checks a submitted answer map against the definition and
// returns it re-tagged by question type. Each key must be a known question and
// at most one member of each group may be answered.
func ValidateAnswers(questions model.Questions, answers model.Answers) (model.Answers, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no answers submitted", ErrInvalidAnswer)
	}
	out := make(model.Answers, len(answers))
	groups := make(map[string]string)
	for id, a := range answers {
		q, ok := questions.Find(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %s", ErrInvalidAnswer, id)
		}
		if q.Group != "" {
			if other, dup := groups[q.Group]; dup {
				return nil, fmt.Errorf("%w: questions %s and %s belong to group %s", ErrInvalidAnswer, other, id, q.Group)
			}
			groups[q.Group] = id
		}
		normalized, err := ValidateAnswer(q, a.Value)
		if err != nil {
			return nil, err
		}
		out[id] = normalized
	}
	return out, nil
}

// ValidateDefinition checks a survey definition before it is saved.
func ValidateDefinition(s *model.SurveySettings) error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	var errs []error
	if len(s.Questions) == 0 {
		errs = append(errs, errors.New("at least one question is required"))
	}

	ids := make(map[string]struct{}, len(s.Questions))
	optional, fixed := 0, 0
	groups := make(map[string]struct{})
	for _, q := range s.Questions {
		if _, dup := ids[q.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate question id %s", q.ID))
		}
		ids[q.ID] = struct{}{}

		if q.Type.IsChoice() && len(q.Options) == 0 {
			errs = append(errs, fmt.Errorf("question %s needs options", q.ID))
		}
		switch {
		case q.Group != "":
			if q.IsRandom {
				errs = append(errs, fmt.Errorf("grouped question %s must not be flagged random", q.ID))
			}
			groups[q.Group] = struct{}{}
		case q.IsRandom:
			optional++
		default:
			fixed++
		}
	}

	r := s.RandomRange
	if r.Min < 0 || r.Min > r.Max || r.Max > optional {
		errs = append(errs, fmt.Errorf("random range {min:%d max:%d} must satisfy 0 <= min <= max <= %d", r.Min, r.Max, optional))
	}
	if len(s.Questions) > 0 && fixed+len(groups)+r.Min == 0 {
		errs = append(errs, errors.New("a session could end up with no questions"))
	}
	if !s.UseRandomTone && s.DefaultTone != "" && len(s.Tones) > 0 && !contains(s.Tones, s.DefaultTone) {
		errs = append(errs, fmt.Errorf("default tone %q is not in the tone list", s.DefaultTone))
	}
	return errors.Join(errs...)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
