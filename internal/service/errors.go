package service

import "errors"

// Domain Errors
var (
	ErrAssessmentNotFound     = errors.New("assessment not found")
	ErrNotAssessmentAuthor    = errors.New("not the author of this assessment")
	ErrNoQuestions            = errors.New("assessment has no questions, cannot publish")
	ErrAssessmentNotDraft     = errors.New("assessment status is not DRAFT")
	ErrAssessmentNotPublished = errors.New("assessment status is not PUBLISHED")
	ErrInvalidAssessment      = errors.New("invalid assessment")
)
