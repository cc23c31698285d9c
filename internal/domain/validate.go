package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateVideo checks a video record before it can start a session.
func ValidateVideo(v VideoRef) error {
	if err := validatorInstance().Struct(v); err != nil {
		return fmt.Errorf("video %q: %s", v.ID, describe(err))
	}
	return nil
}

// ValidateQuestion checks a question against the video it belongs to.
// The returned error wraps ErrInvalidQuestion.
func ValidateQuestion(q Question, duration float64) error {
	if err := validatorInstance().Struct(q); err != nil {
		return fmt.Errorf("%w %q: %s", ErrInvalidQuestion, q.ID, describe(err))
	}
	if q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("%w %q: correct answer %d out of range", ErrInvalidQuestion, q.ID, q.CorrectIndex)
	}
	if duration > 0 && q.Timestamp > duration {
		return fmt.Errorf("%w %q: timestamp %.1fs beyond duration %.1fs", ErrInvalidQuestion, q.ID, q.Timestamp, duration)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
