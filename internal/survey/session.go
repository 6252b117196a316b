package survey

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

var (
	ErrEmptySurvey      = errors.New("survey has no questions")
	ErrNotStarted       = errors.New("survey session has not started")
	ErrAlreadyStarted   = errors.New("survey session already started")
	ErrAlreadyCompleted = errors.New("survey session already completed")
	ErrIncomplete       = errors.New("survey session is not completed")
)

// Phase is the coarse session state.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Completed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is NotStarted, InProgress{Index} or Completed.
type State struct {
	Phase Phase
	Index int
}

// Event drives State transitions.
type Event int

const (
	EventStart Event = iota
	EventAdvance
)

// Transition is total over (State, Event): every pair yields a next state or an error.
func Transition(s State, ev Event, total int) (State, error) {
	switch s.Phase {
	case NotStarted:
		if ev != EventStart {
			return s, ErrNotStarted
		}
		if total == 0 {
			return s, ErrEmptySurvey
		}
		return State{Phase: InProgress, Index: 0}, nil
	case InProgress:
		if ev != EventAdvance {
			return s, ErrAlreadyStarted
		}
		if s.Index+1 >= total {
			return State{Phase: Completed, Index: total}, nil
		}
		return State{Phase: InProgress, Index: s.Index + 1}, nil
	case Completed:
		return s, ErrAlreadyCompleted
	default:
		return s, fmt.Errorf("unknown phase %v", s.Phase)
	}
}

// Session is one customer's run through the selected questions.
// It is not safe for concurrent use; a session belongs to a single client.
type Session struct {
	settingsID string
	shopID     string
	intro      string
	outro      string
	questions  []model.Question
	state      State
	answers    model.Answers
}

// NewSession selects questions from the definition and returns a session in NotStarted.
func NewSession(settings *model.SurveySettings, rng *rand.Rand) *Session {
	return &Session{
		settingsID: settings.ID,
		shopID:     settings.ShopID,
		intro:      settings.IntroMessage,
		outro:      settings.OutroMessage,
		questions:  Select(settings.Questions, settings.RandomRange, rng),
		answers:    model.Answers{},
	}
}

func (s *Session) State() State                { return s.state }
func (s *Session) Questions() []model.Question { return s.questions }
func (s *Session) Intro() string               { return s.intro }
func (s *Session) Outro() string               { return s.outro }

// Start moves to the first question.
func (s *Session) Start() (model.Question, error) {
	next, err := Transition(s.state, EventStart, len(s.questions))
	if err != nil {
		return model.Question{}, err
	}
	s.state = next
	return s.questions[0], nil
}

// Current returns the question awaiting an answer.
func (s *Session) Current() (model.Question, bool) {
	if s.state.Phase != InProgress {
		return model.Question{}, false
	}
	return s.questions[s.state.Index], true
}

// Answer records the answer to the current question and advances.
// It returns the next question, or nil once the session is completed.
func (s *Session) Answer(value string) (*model.Question, error) {
	q, ok := s.Current()
	if !ok {
		if s.state.Phase == Completed {
			return nil, ErrAlreadyCompleted
		}
		return nil, ErrNotStarted
	}
	answer, err := ValidateAnswer(q, value)
	if err != nil {
		return nil, err
	}
	next, err := Transition(s.state, EventAdvance, len(s.questions))
	if err != nil {
		return nil, err
	}
	s.answers[q.ID] = answer
	s.state = next
	if next.Phase == Completed {
		return nil, nil
	}
	nq := s.questions[next.Index]
	return &nq, nil
}

// Progress returns answered and total question counts.
func (s *Session) Progress() (answered, total int) {
	return len(s.answers), len(s.questions)
}

// Answers returns a copy of the captured answers.
func (s *Session) Answers() model.Answers {
	out := make(model.Answers, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Response builds the record to persist. Only valid once completed.
func (s *Session) Response() (*model.SurveyResponse, error) {
	if s.state.Phase != Completed {
		return nil, ErrIncomplete
	}
	return &model.SurveyResponse{
		ShopID:           s.shopID,
		SurveySettingsID: s.settingsID,
		Answers:          s.Answers(),
	}, nil
}
