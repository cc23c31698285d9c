package domain

import "errors"

var (
	// ErrVideoNotFound is fatal for a session: nothing can play without a video.
	ErrVideoNotFound = errors.New("video not found")
	// ErrSessionNotFound is returned when a playback session is not registered.
	ErrSessionNotFound = errors.New("playback session not found")
	// ErrSessionClosed is returned for commands issued after teardown.
	ErrSessionClosed = errors.New("playback session closed")
	// ErrNoActiveQuestion is returned when answering with no question on screen.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrAlreadyAnswered rejects a second selection for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrInvalidOption indicates the selected option index is out of range.
	ErrInvalidOption = errors.New("option not found")
	// ErrQuestionActive rejects resuming playback while a question is shown.
	ErrQuestionActive = errors.New("question in progress")
	// ErrUnauthorized is returned when a viewer identity is required but missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a viewer asks for another viewer's data.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidQuestion marks question records that cannot be scheduled.
	ErrInvalidQuestion = errors.New("invalid question")
)
