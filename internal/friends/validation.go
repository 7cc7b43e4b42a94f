package friends

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/playmates/backend/internal/models"
)

// MaxSearchQueryLength bounds the number of characters accepted by SearchUsers.
const MaxSearchQueryLength = 64

// RequestState is what the store knows about a pair before a new request is created.
type RequestState struct {
	Existing        *models.Relationship
	ReceiverPrivacy models.PrivacySettings
	MutualFriend    bool
}

// PrivacySettingsPatch is a validated partial update. Nil fields are left unchanged.
type PrivacySettingsPatch struct {
	FriendRequestPermission *models.FriendRequestPermission
	ShowOnlineStatus        *bool
}

// Apply merges the patch into settings and returns the result.
func (p PrivacySettingsPatch) Apply(settings models.PrivacySettings) models.PrivacySettings {
	if p.FriendRequestPermission != nil {
		settings.FriendRequestPermission = *p.FriendRequestPermission
	}
	if p.ShowOnlineStatus != nil {
		settings.ShowOnlineStatus = *p.ShowOnlineStatus
	}
	return settings
}

const (
	fieldFriendRequestPermission = "friendRequestPermission"
	fieldShowOnlineStatus        = "showOnlineStatus"
)

// ValidateUserID rejects empty, malformed and self-referencing identifiers.
func ValidateUserID(actorID, id string) error {
	_, err := NormalizeUserID(actorID, id)
	return err
}

// NormalizeUserID validates id like ValidateUserID and returns it in canonical form
// (lowercase, hyphenated). Braced, urn and dashless encodings of a UUID are accepted, so the
// self check compares canonical forms of both ids.
func NormalizeUserID(actorID, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", newError(KindInvalidIdentifier, "user id is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", &Error{Kind: KindInvalidIdentifier, Message: fmt.Sprintf("user id %q is malformed", id), Err: err}
	}
	canonical := parsed.String()
	if actorID != "" && canonical == canonicalID(actorID) {
		return "", newError(KindInvalidIdentifier, "cannot perform this action on yourself")
	}
	return canonical, nil
}

// canonicalID returns the canonical form of id, or id trimmed and lowercased when it does not parse.
func canonicalID(id string) string {
	id = strings.TrimSpace(id)
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return strings.ToLower(id)
}

// ValidateFriendRequest checks the business rules gating a new friend request.
func ValidateFriendRequest(senderID, receiverID string, state RequestState) error {
	if err := ValidateUserID("", senderID); err != nil {
		return err
	}
	if err := ValidateUserID(senderID, receiverID); err != nil {
		return err
	}

	if rel := state.Existing; rel != nil {
		switch rel.Status {
		case models.RelationshipPending:
			return newError(KindDuplicateRequest, "a friend request is already pending between these users")
		case models.RelationshipAccepted:
			return newError(KindDuplicateRequest, "you are already friends")
		case models.RelationshipBlocked:
			return newError(KindPermissionDenied, "friend requests are not allowed between these users")
		}
	}

	switch state.ReceiverPrivacy.FriendRequestPermission {
	case models.PermissionNoOne:
		return newError(KindPermissionDenied, "this user does not accept friend requests")
	case models.PermissionFriendsOfFriends:
		if !state.MutualFriend {
			return newError(KindPermissionDenied, "this user only accepts requests from friends of friends")
		}
	}
	return nil
}

// ValidatePrivacySettingsUpdate checks a partial settings document and converts it into a patch.
func ValidatePrivacySettingsUpdate(partial map[string]any) (PrivacySettingsPatch, error) {
	var patch PrivacySettingsPatch
	if len(partial) == 0 {
		return patch, newError(KindInvalidInput, "at least one setting must be provided")
	}

	keys := make([]string, 0, len(partial))
	for key := range partial {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := partial[key]
		switch key {
		case fieldFriendRequestPermission:
			raw, ok := value.(string)
			permission := models.FriendRequestPermission(raw)
			if !ok || !permission.Valid() {
				return PrivacySettingsPatch{}, newError(KindInvalidEnumValue,
					fmt.Sprintf("%s must be one of everyone, friends_of_friends, no_one", fieldFriendRequestPermission))
			}
			patch.FriendRequestPermission = &permission
		case fieldShowOnlineStatus:
			show, ok := value.(bool)
			if !ok {
				return PrivacySettingsPatch{}, newError(KindInvalidEnumValue,
					fmt.Sprintf("%s must be true or false", fieldShowOnlineStatus))
			}
			patch.ShowOnlineStatus = &show
		default:
			return PrivacySettingsPatch{}, newError(KindUnknownField, fmt.Sprintf("unknown setting %q", key))
		}
	}
	return patch, nil
}

// ValidateSearchQuery trims the query and bounds its length. An empty result is valid.
func ValidateSearchQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) > MaxSearchQueryLength {
		return "", newError(KindInvalidInput, fmt.Sprintf("search query must be at most %d characters", MaxSearchQueryLength))
	}
	return query, nil
}
