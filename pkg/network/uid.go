package network

import "github.com/rs/xid"

// Uid identifies sessions and sockets. Being an xid, ids made
// one after another differ in their tail.
type Uid string

const shortUid = 6

func NewUid() Uid { return Uid(xid.New().String()) }

func (u Uid) String() string { return string(u) }

// Short is the tail of the id, enough to tell the sessions apart in logs.
func (u Uid) Short() string {
	if len(u) <= shortUid {
		return string(u)
	}
	return string(u[len(u)-shortUid:])
}
