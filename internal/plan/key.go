package plan

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// compositeSuffix matches the `_<unix millis>` suffix Submit appends
	// to request ids.
	compositeSuffix = regexp.MustCompile(`_\d+$`)

	// identifierPattern bounds what may be used as a storage key.
	identifierPattern = regexp.MustCompile(`^[^\s/?#]{1,256}$`)

	// emailPattern is a syntactic plausibility check, not validation.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// SyntheticKeyPrefix starts keys minted when a callback carries no usable
// identifier.
const SyntheticKeyPrefix = "plan_"

// NormalizeID trims id and strips a trailing `_<digits>` suffix, so a
// composite request id and the bare email it was built from address the
// same record.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)

	stripped := compositeSuffix.ReplaceAllString(id, "")
	if stripped == "" {
		return id
	}

	return stripped
}

// PlausibleEmail reports whether s looks like an email address.
func PlausibleEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// keyCandidate is one place a storage key may come from.
type keyCandidate struct {
	name    string
	extract func(payload, data map[string]any, rec Record) string
}

// keyCandidates lists key sources in priority order: explicit request ids
// first, then emails from the most to the least specific location.
var keyCandidates = []keyCandidate{
	{"learningData.requestId", func(_, d map[string]any, _ Record) string {
		return text(d["requestId"])
	}},
	{"dataId", func(p, _ map[string]any, _ Record) string {
		return text(p["dataId"])
	}},
	{"requestId", func(p, _ map[string]any, _ Record) string {
		return text(p["requestId"])
	}},
	{"record.email", func(_, _ map[string]any, r Record) string {
		return r.Email
	}},
	{"email", func(p, _ map[string]any, _ Record) string {
		return text(p["email"])
	}},
	{"learningData.email", func(_, d map[string]any, _ Record) string {
		return text(d["email"])
	}},
	{"learningData.profile.email", func(_, d map[string]any,
		_ Record) string {

		v, _ := path(d, "profile", "email")
		return text(v)
	}},
	{"profile.email", func(p, _ map[string]any, _ Record) string {
		v, _ := path(p, "profile", "email")
		return text(v)
	}},
	{"userProfile.email", func(p, _ map[string]any, _ Record) string {
		v, _ := path(p, "userProfile", "email")
		return text(v)
	}},
}

// resolvedKey is the outcome of key resolution.
type resolvedKey struct {
	// key is the normalized storage key.
	key string

	// source names the candidate the key came from, or "synthetic".
	source string
}

// findKey returns the first candidate that is a valid identifier, or None.
func findKey(payload, data map[string]any, rec Record) fn.Option[resolvedKey] {
	for _, c := range keyCandidates {
		raw := c.extract(payload, data, rec)
		if !identifierPattern.MatchString(raw) {
			continue
		}

		return fn.Some(resolvedKey{key: NormalizeID(raw), source: c.name})
	}

	return fn.None[resolvedKey]()
}

// resolveKey resolves the storage key, minting a time-ordered synthetic key
// when no candidate is usable.
func resolveKey(payload, data map[string]any, rec Record) resolvedKey {
	return findKey(payload, data, rec).UnwrapOrFunc(func() resolvedKey {
		return resolvedKey{key: syntheticKey(), source: "synthetic"}
	})
}

// syntheticKey returns plan_<uuidv7>.
func syntheticKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return SyntheticKeyPrefix + id.String()
}
