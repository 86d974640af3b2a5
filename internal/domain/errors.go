package domain

import "errors"

var (
	ErrSubmission       = errors.New("submission failed")
	ErrRejected         = errors.New("submission rejected")
	ErrTimedOut         = errors.New("timed out")
	ErrTransient        = errors.New("transient poll failure")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactIO       = errors.New("artifact io failure")
	ErrBatchAbort       = errors.New("backend unreachable")
)
