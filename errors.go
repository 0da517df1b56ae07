package pagestore

import (
	"errors"

	pr "github.com/unkn0wn-root/pagestore/provider"
)

// ConnectivityError is returned by Connect (and provider constructors) when the remote
// store cannot be reached or configured. It is the only error a data path can trace back
// to; everything after construction degrades to a miss or a no-op.
type ConnectivityError = pr.ConnectivityError

var (
	ErrNilProvider       = errors.New("pagestore: provider is required")
	ErrInvalidExpiration = errors.New("pagestore: expiration time must not be negative")
	ErrInvalidPort       = pr.ErrInvalidPort
	ErrNoServers         = pr.ErrNoServers
)
