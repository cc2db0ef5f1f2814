package client

import "errors"

var ErrEmptyDatabasePath = errors.New("database path is empty")
