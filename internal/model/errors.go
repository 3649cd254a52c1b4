package model

import (
	"errors"
)

var (
	ErrInvalidURL = errors.New("invalid url")
)
