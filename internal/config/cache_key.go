package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AssessmentPayloadKey holds the student-facing assessment JSON (no answers).
func (r *CacheKeyStruct) AssessmentPayloadKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:payload", assessmentID)
}

// AssessmentAnswerKey holds the question ID → correct option hash used for scoring.
func (r *CacheKeyStruct) AssessmentAnswerKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:key", assessmentID)
}

// AssessmentPublishedSet lists the IDs of every cached assessment.
func (r *CacheKeyStruct) AssessmentPublishedSet() string {
	return "assessments:published"
}

var CacheKey = NewCacheKeyStruct()
