// Package appsession persists one session record per app and decides whether
// each record still grants access.
//
// A record lives under two keys: session:<appId> holds the token and
// activity:<appId> holds the last activity time in epoch milliseconds.
// Every read re-evaluates the record and deletes it when it no longer
// grants access, so expired records never linger. A put writes the session
// before the activity, and a prune deletes only the values it evaluated,
// so a reader racing a put never removes the record being created.
package appsession

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-app-lock/internal/metrics"
	"github.com/jrsteele09/go-app-lock/kv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// Corrupt labels records pruned because they could not be decoded.
	Corrupt Verdict = "corrupt"

	// Orphan labels activity keys pruned because their session is gone.
	Orphan Verdict = "orphan"
)

// pendingPutWindow is how long a session without activity is left in place
// for the put that wrote it to finish.
const pendingPutWindow = 10 * time.Second

var ErrEmptyToken = errors.New("empty token")

// Store reads and writes app session records in a kv.Store.
type Store struct {
	kv        kv.Store
	evaluator Evaluator
	nowTime   func() time.Time
}

type Option func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func WithEvaluator(e Evaluator) Option {
	return func(s *Store) {
		s.evaluator = e
	}
}

// WithTimeout overrides the inactivity window of the current evaluator.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.evaluator.Timeout = timeout
	}
}

func New(backing kv.Store, options ...Option) (*Store, error) {
	if backing == nil {
		return nil, errors.New("[appsession.New] kv store is required")
	}
	s := &Store{
		kv:        backing,
		evaluator: NewEvaluator(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Put stores token for appID and marks the app active now. The session is
// written before the activity and carries its own creation time.
func (s *Store) Put(ctx context.Context, appID int, token string) error {
	return s.put(ctx, sessionKey(appID), activityKey(appID), appID, token)
}

// Get returns the app's token when its record is valid. An invalid record
// is deleted and reported as absent. Store failures are logged and reported
// as absent.
func (s *Store) Get(ctx context.Context, appID int) (string, bool) {
	return s.get(ctx, sessionKey(appID), activityKey(appID), appID)
}

// Touch sets the activity of a valid session to now. It reports false,
// without writing, when no valid session exists; an invalid one is deleted.
func (s *Store) Touch(ctx context.Context, appID int) (bool, error) {
	sk, ak := sessionKey(appID), activityKey(appID)
	rec, snap, found, err := s.read(ctx, sk, ak, appID)
	if err != nil {
		if errors.Is(err, errMalformedRecord) {
			s.prune(ctx, sk, ak, appID, snap, Corrupt)
			return false, nil
		}
		return false, errors.Wrapf(err, "[Touch] app %d", appID)
	}
	if !found {
		return false, nil
	}

	now := s.nowTime()
	if verdict := s.evaluator.Evaluate(rec, now); verdict != Valid {
		s.discard(ctx, sk, ak, rec, snap, verdict, now)
		return false, nil
	}
	if err := s.kv.Set(ctx, ak, encodeActivity(now)); err != nil {
		return false, errors.Wrapf(err, "[Touch] app %d", appID)
	}
	return true, nil
}

// Remove deletes the app's record. Removing an absent record is not an error.
func (s *Store) Remove(ctx context.Context, appID int) error {
	if err := s.kv.Delete(ctx, sessionKey(appID), activityKey(appID)); err != nil {
		return errors.Wrapf(err, "[Remove] app %d", appID)
	}
	return nil
}

// RemoveAll deletes every app record and the shared slot.
func (s *Store) RemoveAll(ctx context.Context) error {
	var keys []string
	for _, prefix := range []string{sessionPrefix, activityPrefix} {
		found, err := s.kv.Keys(ctx, prefix)
		if err != nil {
			return errors.Wrap(err, "[RemoveAll] list keys")
		}
		keys = append(keys, found...)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return errors.Wrap(err, "[RemoveAll] delete")
	}
	log.Debug().Int("keys", len(keys)).Msg("removed all app sessions")
	return nil
}

// ActiveAppIDs lists, in ascending order, the apps holding a valid session.
// Invalid and undecodable records found along the way are deleted, as are
// activity keys left without a session.
func (s *Store) ActiveAppIDs(ctx context.Context) []int {
	keys, err := s.kv.Keys(ctx, sessionPrefix)
	if err != nil {
		log.Err(err).Msg("[ActiveAppIDs] list sessions")
		return []int{}
	}

	ids := make([]int, 0, len(keys))
	for _, key := range keys {
		appID, shared, ok := parseAppKey(key)
		if shared {
			continue
		}
		if !ok {
			log.Warn().Str("key", key).Msg("pruning session key with no app id")
			if err := s.kv.Delete(ctx, key); err != nil {
				log.Err(err).Str("key", key).Msg("[ActiveAppIDs] delete")
			}
			metrics.SessionPrunes.WithLabelValues(string(Corrupt)).Inc()
			continue
		}
		if _, valid := s.Get(ctx, appID); valid {
			ids = append(ids, appID)
		}
	}
	s.sweepOrphans(ctx)

	sort.Ints(ids)
	return ids
}

// Record reads the stored record without evaluating or pruning it. It
// returns kv.ErrNotFound when no session is stored for appID.
func (s *Store) Record(ctx context.Context, appID int) (*Record, error) {
	rec, _, found, err := s.read(ctx, sessionKey(appID), activityKey(appID), appID)
	if err != nil {
		return nil, err
	}
	if !found || rec.Token == "" {
		return nil, kv.ErrNotFound
	}
	return rec, nil
}

// PutShared stores the token in the single slot shared by every app.
func (s *Store) PutShared(ctx context.Context, token string) error {
	return s.put(ctx, sessionPrefix+sharedSlot, activityPrefix+sharedSlot, 0, token)
}

func (s *Store) GetShared(ctx context.Context) (string, bool) {
	return s.get(ctx, sessionPrefix+sharedSlot, activityPrefix+sharedSlot, 0)
}

func (s *Store) RemoveShared(ctx context.Context) error {
	if err := s.kv.Delete(ctx, sessionPrefix+sharedSlot, activityPrefix+sharedSlot); err != nil {
		return errors.Wrap(err, "[RemoveShared]")
	}
	return nil
}

func (s *Store) put(ctx context.Context, sk, ak string, appID int, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}

	now := s.nowTime()
	value, err := encodeSession(appID, token, now)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, sk, value); err != nil {
		return errors.Wrapf(err, "[Put] session %s", sk)
	}
	if err := s.kv.Set(ctx, ak, encodeActivity(now)); err != nil {
		return errors.Wrapf(err, "[Put] activity %s", ak)
	}
	log.Debug().Str("key", sk).Msg("stored app session")
	return nil
}

func (s *Store) get(ctx context.Context, sk, ak string, appID int) (string, bool) {
	rec, snap, found, err := s.read(ctx, sk, ak, appID)
	if err != nil {
		if errors.Is(err, errMalformedRecord) {
			log.Warn().Err(err).Str("key", sk).Msg("pruning undecodable session")
			s.prune(ctx, sk, ak, appID, snap, Corrupt)
			return "", false
		}
		log.Err(err).Str("key", sk).Msg("[Get] read session")
		return "", false
	}
	if !found {
		return "", false
	}

	now := s.nowTime()
	verdict := s.evaluator.Evaluate(rec, now)
	if verdict != Valid {
		s.discard(ctx, sk, ak, rec, snap, verdict, now)
		return "", false
	}
	return rec.Token, true
}

// read loads the session before the activity, the reverse of the write
// order in put. found is false when no session key exists. The snapshot is
// filled in as far as the reads got, even when decoding fails.
func (s *Store) read(ctx context.Context, sk, ak string, appID int) (*Record, snapshot, bool, error) {
	raw, err := s.kv.Get(ctx, sk)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, snapshot{}, false, nil
	}
	if err != nil {
		return nil, snapshot{}, false, err
	}

	snap := snapshot{session: raw}
	rawActivity, err := s.kv.Get(ctx, ak)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return nil, snap, true, err
	default:
		snap.activity, snap.hasActivity = rawActivity, true
	}

	rec, err := decodeRecord(appID, snap)
	if err != nil {
		return nil, snap, true, err
	}
	return rec, snap, true, nil
}

// discard prunes an invalid record, except a session whose activity has
// not been written yet because its put is still running.
func (s *Store) discard(ctx context.Context, sk, ak string, rec *Record, snap snapshot, verdict Verdict, now time.Time) {
	if verdict == NoActivity && !rec.CreatedAt.IsZero() {
		age := now.Sub(rec.CreatedAt)
		if age >= -s.evaluator.skew() && age <= pendingPutWindow {
			log.Debug().Int("app_id", rec.AppID).Msg("session awaiting its activity, not pruned")
			return
		}
	}
	s.prune(ctx, sk, ak, rec.AppID, snap, verdict)
}

// prune deletes the record only while it still holds the observed values.
// A session replaced since it was read is left alone along with its activity.
func (s *Store) prune(ctx context.Context, sk, ak string, appID int, snap snapshot, verdict Verdict) {
	deleted, err := s.kv.DeleteIf(ctx, sk, snap.session)
	if err != nil {
		log.Err(err).Str("key", sk).Msg("[prune] delete session")
		return
	}
	if !deleted {
		log.Debug().Int("app_id", appID).Str("key", sk).Msg("session replaced while evaluating, not pruned")
		return
	}
	if snap.hasActivity {
		if _, err := s.kv.DeleteIf(ctx, ak, snap.activity); err != nil {
			log.Err(err).Str("key", ak).Msg("[prune] delete activity")
		}
	}
	metrics.SessionPrunes.WithLabelValues(string(verdict)).Inc()
	log.Debug().Int("app_id", appID).Str("key", sk).Str("verdict", string(verdict)).Msg("pruned app session")
}

// sweepOrphans deletes activity keys that have no session. Put writes the
// session first, so a lone activity key is never a put in progress. The
// activity is read before the session is checked, and deleted only while
// unchanged, so a put landing in between keeps its activity.
func (s *Store) sweepOrphans(ctx context.Context) {
	keys, err := s.kv.Keys(ctx, activityPrefix)
	if err != nil {
		log.Err(err).Msg("[sweepOrphans] list activity")
		return
	}

	for _, ak := range keys {
		raw, err := s.kv.Get(ctx, ak)
		if err != nil {
			continue
		}
		sk := sessionPrefix + strings.TrimPrefix(ak, activityPrefix)
		if _, err := s.kv.Get(ctx, sk); !errors.Is(err, kv.ErrNotFound) {
			continue
		}
		deleted, err := s.kv.DeleteIf(ctx, ak, raw)
		if err != nil {
			log.Err(err).Str("key", ak).Msg("[sweepOrphans] delete")
			continue
		}
		if deleted {
			metrics.SessionPrunes.WithLabelValues(string(Orphan)).Inc()
			log.Debug().Str("key", ak).Msg("pruned orphan activity")
		}
	}
}
