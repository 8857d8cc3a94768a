package membership

import "errors"

// ErrSelfJoin is returned when a peer attempts to join its own view.
var ErrSelfJoin = errors.New("membership: cannot join self")
