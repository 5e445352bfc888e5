package appsession

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-app-lock/internal/utils"
	"github.com/pkg/errors"
)

const (
	sessionPrefix  = "session:"
	activityPrefix = "activity:"
	sharedSlot     = "shared"
)

var errMalformedRecord = errors.New("malformed session record")

// Record is one app's persisted session: the app-scoped token and the
// last time the user interacted with that app. LastActivity is never
// earlier than CreatedAt and is zero when no activity is stored.
type Record struct {
	AppID        int
	Token        string
	CreatedAt    time.Time
	LastActivity time.Time
}

// snapshot holds the raw values one read observed under both keys.
type snapshot struct {
	session     string
	activity    string
	hasActivity bool
}

// sessionValue is the JSON stored under session:<appId>.
type sessionValue struct {
	Token     string `json:"token"`
	AppID     int    `json:"appId"`
	Timestamp int64  `json:"timestamp"`
}

func sessionKey(appID int) string {
	return sessionPrefix + strconv.Itoa(appID)
}

func activityKey(appID int) string {
	return activityPrefix + strconv.Itoa(appID)
}

// parseAppKey extracts the app id from a session: or activity: key.
func parseAppKey(key string) (appID int, shared bool, ok bool) {
	var suffix string
	switch {
	case strings.HasPrefix(key, sessionPrefix):
		suffix = strings.TrimPrefix(key, sessionPrefix)
	case strings.HasPrefix(key, activityPrefix):
		suffix = strings.TrimPrefix(key, activityPrefix)
	default:
		return 0, false, false
	}
	if suffix == sharedSlot {
		return 0, true, true
	}
	id, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false, false
	}
	return id, false, true
}

func encodeSession(appID int, token string, at time.Time) (string, error) {
	b, err := json.Marshal(sessionValue{Token: token, AppID: appID, Timestamp: at.UnixMilli()})
	if err != nil {
		return "", errors.Wrap(err, "[encodeSession] marshal")
	}
	return string(b), nil
}

func decodeSession(raw string, appID int) (sessionValue, error) {
	var v sessionValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return sessionValue{}, errors.Wrap(errMalformedRecord, err.Error())
	}
	if v.AppID != appID {
		return sessionValue{}, errors.Wrapf(errMalformedRecord, "appId %d stored under key for %d", v.AppID, appID)
	}
	return v, nil
}

// decodeRecord builds the record a snapshot describes. The session's own
// timestamp is the floor for its activity, so a session paired with an
// activity value older than itself still counts as created just now.
func decodeRecord(appID int, snap snapshot) (*Record, error) {
	v, err := decodeSession(snap.session, appID)
	if err != nil {
		return nil, err
	}

	rec := &Record{AppID: appID, Token: v.Token}
	if v.Timestamp > 0 {
		rec.CreatedAt = time.UnixMilli(v.Timestamp)
	}
	if snap.hasActivity {
		last, err := decodeActivity(snap.activity)
		if err != nil {
			return nil, err
		}
		rec.LastActivity = time.UnixMilli(utils.Max(last.UnixMilli(), v.Timestamp))
	}
	return rec, nil
}

func encodeActivity(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

func decodeActivity(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(errMalformedRecord, err.Error())
	}
	return time.UnixMilli(ms), nil
}
