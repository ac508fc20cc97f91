package livefeed

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DefaultAvatar   = "https://www.tiktok.com/favicon.ico"
	unknownUserName = "Unknown User"
)

var allDigits = regexp.MustCompile(`^\d+$`)

// DisplayName picks a human-readable name: a handle that is not purely
// numeric, then a nickname, then any identifier at all.
func DisplayName(raw []byte) string {
	r := gjson.GetManyBytes(raw,
		"uniqueId", "user.uniqueId", "nickname", "user.nickname", "userId", "user.userId")
	uniqueID, nestedUniqueID := str(r[0]), str(r[1])
	nickname, nestedNickname := str(r[2]), str(r[3])
	userID, nestedUserID := str(r[4]), str(r[5])

	switch {
	case uniqueID != "" && !allDigits.MatchString(uniqueID):
		return uniqueID
	case nestedUniqueID != "" && !allDigits.MatchString(nestedUniqueID):
		return nestedUniqueID
	case nickname != "":
		return nickname
	case nestedNickname != "":
		return nestedNickname
	}
	return firstNonEmpty(unknownUserName, uniqueID, nestedUniqueID, userID, nestedUserID)
}

// UserKey returns the stable identity used for remainders and dedup:
// user id, then handle, then display name. Empty means no identity.
func UserKey(raw []byte) string {
	r := gjson.GetManyBytes(raw,
		"userId", "user.userId", "uniqueId", "user.uniqueId", "nickname", "user.nickname")
	for _, v := range r {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

// Avatar returns the profile picture URL or the default avatar.
func Avatar(raw []byte) string {
	r := gjson.GetManyBytes(raw,
		"profilePictureUrl", "user.profilePictureUrl", "user.avatarThumb.urlList.0", "avatar")
	return firstNonEmpty(DefaultAvatar, str(r[0]), str(r[1]), str(r[2]), str(r[3]))
}

// IsSubscriber only honours explicit boolean flags.
func IsSubscriber(raw []byte) bool {
	r := gjson.GetManyBytes(raw, "isSubscriber", "user.isSubscriber", "userDetails.isSubscriber")
	for _, v := range r {
		if v.Type == gjson.True {
			return true
		}
	}
	return false
}

func str(r gjson.Result) string {
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(r.String())
}

func firstNonEmpty(fallback string, values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return fallback
}
