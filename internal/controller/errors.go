package controller

import "errors"

var (
	ErrNotSignedIn      = errors.New("no user is signed in")
	ErrNoActiveProject  = errors.New("no project is open")
	ErrNoteNotFound     = errors.New("note not found in the open project")
	ErrNoRename         = errors.New("no rename in progress")
	ErrProjectNotListed = errors.New("project is not in the visible list")
)
