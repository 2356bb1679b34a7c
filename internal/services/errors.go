package services

import "errors"

var (
	// ErrNoFileRecord means an asset has no live file record to migrate from.
	ErrNoFileRecord = errors.New("asset has no file record")

	// ErrNoCopyOnDisk means neither the source nor the destination mount holds the file.
	ErrNoCopyOnDisk = errors.New("file exists on neither source nor destination mount")

	// ErrSizeMismatch means a fresh copy does not match the source size.
	ErrSizeMismatch = errors.New("copied size does not match source")

	// ErrConflictingCopies means source and destination both hold the file with
	// different sizes. Neither copy is trusted; an operator has to decide.
	ErrConflictingCopies = errors.New("source and destination copies differ in size")
)
