// Package idgen mints the typed identifiers of the service. An id is a short
// prefix naming what it identifies followed by a UUIDv7, so ids sort by
// creation time and a stray id in a log says what it belongs to.
//
// Components take a Generator so tests can swap in Sequence.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Prefixes in use.
const (
	Chapter = "chp_"
	Ebook   = "ebk_"
	Upload  = "upl_"
	Request = "req_"
	Audit   = "aud_"
)

// For returns a Generator of prefix + UUIDv7.
func For(prefix string) Generator {
	return func() string {
		return prefix + uuid.Must(uuid.NewV7()).String()
	}
}

// Sequence returns a Generator of prefix+"1", prefix+"2", ... Safe for
// concurrent use; ids are unique per Generator only.
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}
