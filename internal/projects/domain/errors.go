package domain

import "errors"

var (
	ErrNotFound             = errors.New("project not found")
	ErrBlankName            = errors.New("project name must not be blank")
	ErrNotTranscribing      = errors.New("project is not transcribing")
	ErrAlreadyTranscribing  = errors.New("project is already transcribing")
	ErrMediaUnavailable     = errors.New("project media is no longer available")
	ErrConfirmationRequired = errors.New("delete requires explicit confirmation")
	ErrEmptyUpload          = errors.New("uploaded media is empty")
)
