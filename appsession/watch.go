package appsession

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/pkg/errors"
)

// ChangeKind says which half of a record changed and how.
type ChangeKind string

const (
	SessionSet      ChangeKind = "session_set"
	SessionDeleted  ChangeKind = "session_deleted"
	ActivitySet     ChangeKind = "activity_set"
	ActivityDeleted ChangeKind = "activity_deleted"
)

// Change reports a mutation of an app record, possibly made by another
// process sharing the same kv backing.
type Change struct {
	AppID  int
	Shared bool
	Kind   ChangeKind
}

// Watch streams record changes until ctx is done. Keys that do not belong to
// an app record are ignored.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	events, err := s.kv.Watch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[appsession.Watch]")
	}

	changes := make(chan Change, cap(events)+1)
	go func() {
		defer close(changes)
		for ev := range events {
			change, ok := toChange(ev)
			if !ok {
				continue
			}
			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return changes, nil
}

func toChange(ev kv.Event) (Change, bool) {
	appID, shared, ok := parseAppKey(ev.Key)
	if !ok {
		return Change{}, false
	}

	session := strings.HasPrefix(ev.Key, sessionPrefix)
	var kind ChangeKind
	switch {
	case session && ev.Op == kv.OpSet:
		kind = SessionSet
	case session:
		kind = SessionDeleted
	case ev.Op == kv.OpSet:
		kind = ActivitySet
	default:
		kind = ActivityDeleted
	}
	return Change{AppID: appID, Shared: shared, Kind: kind}, true
}
