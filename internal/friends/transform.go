package friends

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/playmates/backend/internal/logging"
	"github.com/playmates/backend/internal/models"
)

// Raw record shapes. Keys follow the store's column names.

type rawProfile struct {
	ID             string   `db:"id"`
	Username       string   `db:"username"`
	FullName       string   `db:"full_name"`
	AvatarURL      *string  `db:"avatar_url"`
	FavoriteSports []string `db:"favorite_sports"`
}

type rawSuggestion struct {
	Profile        rawProfile `db:",squash"`
	MutualSessions int        `db:"mutual_sessions"`
}

type rawRecentMember struct {
	Profile     rawProfile `db:",squash"`
	SessionID   string    `db:"session_id"`
	SessionType string    `db:"session_type"`
	OccurredAt  time.Time `db:"occurred_at"`
}

type rawFriend struct {
	Profile          rawProfile `db:",squash"`
	RelationshipID   string    `db:"relationship_id"`
	FriendsSince     time.Time `db:"friends_since"`
	ShowOnlineStatus *bool     `db:"show_online_status"`
}

type rawFriendRequest struct {
	Profile     rawProfile `db:",squash"`
	RequestID   string    `db:"request_id"`
	RequesterID string    `db:"requester_id"`
	AddresseeID string    `db:"addressee_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type rawPrivacySettings struct {
	FriendRequestPermission string `db:"friend_request_permission"`
	ShowOnlineStatus        *bool  `db:"show_online_status"`
}

func decodeRecord(record models.Record, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
		TagName:          "db",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(record)
}

func (r rawProfile) profile() (models.Profile, error) {
	if strings.TrimSpace(r.ID) == "" {
		return models.Profile{}, fmt.Errorf("record has no user id")
	}
	profile := models.Profile{
		ID:             r.ID,
		Username:       r.Username,
		FullName:       r.FullName,
		FavoriteSports: make([]models.Sport, 0, len(r.FavoriteSports)),
	}
	if r.AvatarURL != nil && *r.AvatarURL != "" {
		avatar := *r.AvatarURL
		profile.AvatarURL = &avatar
	}
	seen := make(map[models.Sport]struct{}, len(r.FavoriteSports))
	for _, tag := range r.FavoriteSports {
		sport := models.Sport(strings.ToLower(strings.TrimSpace(tag)))
		if !sport.Valid() {
			continue
		}
		if _, dup := seen[sport]; dup {
			continue
		}
		seen[sport] = struct{}{}
		profile.FavoriteSports = append(profile.FavoriteSports, sport)
	}
	return profile, nil
}

// TransformProfile maps a user record into its public profile.
func TransformProfile(record models.Record) (models.Profile, error) {
	var raw rawProfile
	if err := decodeRecord(record, &raw); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return raw.profile()
}

// TransformSuggestedFriend maps a recommendation record. Shared sports are computed against
// the viewer's favourite sports.
func TransformSuggestedFriend(record models.Record, viewerSports []models.Sport) (models.SuggestedFriend, error) {
	var raw rawSuggestion
	if err := decodeRecord(record, &raw); err != nil {
		return models.SuggestedFriend{}, fmt.Errorf("decode suggestion: %w", err)
	}
	profile, err := raw.Profile.profile()
	if err != nil {
		return models.SuggestedFriend{}, err
	}
	mutual := raw.MutualSessions
	if mutual < 0 {
		mutual = 0
	}
	shared := SharedSports(viewerSports, profile.FavoriteSports)
	return models.SuggestedFriend{
		Profile:        profile,
		MutualSessions: mutual,
		SharedSports:   shared,
		Score:          SuggestionScore(mutual, len(shared)),
	}, nil
}

// TransformRecentMember maps an interaction record and renders its summary relative to now.
func TransformRecentMember(record models.Record, now time.Time) (models.RecentMember, error) {
	var raw rawRecentMember
	if err := decodeRecord(record, &raw); err != nil {
		return models.RecentMember{}, fmt.Errorf("decode recent member: %w", err)
	}
	profile, err := raw.Profile.profile()
	if err != nil {
		return models.RecentMember{}, err
	}
	interaction := models.InteractionContext{
		SessionID:   raw.SessionID,
		SessionType: models.Sport(strings.ToLower(raw.SessionType)),
		OccurredAt:  raw.OccurredAt.UTC(),
	}
	if !interaction.SessionType.Valid() {
		interaction.SessionType = ""
	}
	return models.RecentMember{
		Profile:     profile,
		Interaction: interaction,
		Summary:     FormatInteractionContext(interaction, now),
	}, nil
}

// TransformFriendRequest maps a pending relationship record as seen by viewerID.
func TransformFriendRequest(record models.Record, viewerID string) (models.FriendRequest, error) {
	var raw rawFriendRequest
	if err := decodeRecord(record, &raw); err != nil {
		return models.FriendRequest{}, fmt.Errorf("decode friend request: %w", err)
	}
	if raw.RequestID == "" {
		return models.FriendRequest{}, fmt.Errorf("record has no request id")
	}
	profile, err := raw.Profile.profile()
	if err != nil {
		return models.FriendRequest{}, err
	}
	direction := models.DirectionReceived
	if raw.RequesterID == viewerID {
		direction = models.DirectionSent
	}
	return models.FriendRequest{
		ID:        raw.RequestID,
		User:      profile,
		Direction: direction,
		CreatedAt: raw.CreatedAt.UTC(),
	}, nil
}

// TransformFriend maps an accepted relationship record. Online is set only when the friend
// shares their status (absent preference means shared) and presence data is available.
func TransformFriend(record models.Record, online map[string]bool) (models.Friend, error) {
	var raw rawFriend
	if err := decodeRecord(record, &raw); err != nil {
		return models.Friend{}, fmt.Errorf("decode friend: %w", err)
	}
	profile, err := raw.Profile.profile()
	if err != nil {
		return models.Friend{}, err
	}
	friend := models.Friend{
		Profile:        profile,
		RelationshipID: raw.RelationshipID,
		FriendsSince:   raw.FriendsSince.UTC(),
	}
	shares := raw.ShowOnlineStatus == nil || *raw.ShowOnlineStatus
	if shares && online != nil {
		status := online[profile.ID]
		friend.Online = &status
	}
	return friend, nil
}

// TransformPrivacySettings maps a settings record, substituting defaults for missing or
// unrecognised values. It never fails.
func TransformPrivacySettings(record models.Record) models.PrivacySettings {
	settings := models.DefaultPrivacySettings()
	if len(record) == 0 {
		return settings
	}
	var raw rawPrivacySettings
	if err := decodeRecord(record, &raw); err != nil {
		return settings
	}
	if permission := models.FriendRequestPermission(raw.FriendRequestPermission); permission.Valid() {
		settings.FriendRequestPermission = permission
	}
	if raw.ShowOnlineStatus != nil {
		settings.ShowOnlineStatus = *raw.ShowOnlineStatus
	}
	return settings
}

// TransformSearchResult maps a user record annotated with the viewer's relationship to them.
func TransformSearchResult(record models.Record, rel *models.Relationship, viewerID string) (models.SearchResult, error) {
	profile, err := TransformProfile(record)
	if err != nil {
		return models.SearchResult{}, err
	}
	return models.SearchResult{Profile: profile, Status: models.StatusFor(rel, viewerID)}, nil
}

// transformRecords applies fn to every record, logging and skipping the ones that cannot be decoded.
func transformRecords[T any](ctx context.Context, kind string, records []models.Record, fn func(models.Record) (T, error)) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		item, err := fn(record)
		if err != nil {
			logging.FromContext(ctx).Warn("skipping malformed record",
				slog.String("record_kind", kind), slog.Any("error", err))
			continue
		}
		out = append(out, item)
	}
	return out
}

// SuggestionScore ranks a suggestion: each mutual session counts twice a shared sport.
func SuggestionScore(mutualSessions, sharedSports int) int {
	return 2*mutualSessions + sharedSports
}

// SharedSports returns the tags of candidate that also appear in viewer, in candidate order.
func SharedSports(viewer, candidate []models.Sport) []models.Sport {
	wanted := make(map[models.Sport]struct{}, len(viewer))
	for _, s := range viewer {
		wanted[s] = struct{}{}
	}
	shared := make([]models.Sport, 0)
	for _, s := range candidate {
		if _, ok := wanted[s]; ok {
			shared = append(shared, s)
		}
	}
	return shared
}

// DeduplicateUsers drops later entries whose user id was already seen, preserving order.
func DeduplicateUsers[T interface{ UserID() string }](users []T) []T {
	seen := make(map[string]struct{}, len(users))
	out := make([]T, 0, len(users))
	for _, u := range users {
		id := u.UserID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, u)
	}
	return out
}

// FilterSuggestedFriends keeps the suggestions for which keep returns true.
func FilterSuggestedFriends(list []models.SuggestedFriend, keep func(models.SuggestedFriend) bool) []models.SuggestedFriend {
	return filter(list, keep)
}

// FilterRecentMembers keeps the members for which keep returns true.
func FilterRecentMembers(list []models.RecentMember, keep func(models.RecentMember) bool) []models.RecentMember {
	return filter(list, keep)
}

func filter[T any](list []T, keep func(T) bool) []T {
	out := make([]T, 0, len(list))
	for _, item := range list {
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// SortSuggestedFriends orders by score descending, then id ascending. The input is not modified.
func SortSuggestedFriends(list []models.SuggestedFriend) []models.SuggestedFriend {
	out := append([]models.SuggestedFriend(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SortRecentMembers orders by interaction time descending, then id ascending.
func SortRecentMembers(list []models.RecentMember) []models.RecentMember {
	out := append([]models.RecentMember(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Interaction.OccurredAt, out[j].Interaction.OccurredAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SortFriends orders by display name (case-insensitive), then id.
func SortFriends(list []models.Friend) []models.Friend {
	out := append([]models.Friend(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName()), strings.ToLower(out[j].DisplayName())
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SortFriendRequests orders newest first, then by request id.
func SortFriendRequests(list []models.FriendRequest) []models.FriendRequest {
	out := append([]models.FriendRequest(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

const absoluteDateAfter = 7 * 24 * time.Hour

// FormatTimeAgo renders t relative to now, switching to an absolute date after a week.
// Timestamps in the future render as "just now".
func FormatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed/time.Minute))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed/time.Hour))
	case elapsed <= absoluteDateAfter:
		return fmt.Sprintf("%dd ago", int(elapsed/(24*time.Hour)))
	default:
		return t.UTC().Format("Jan 2, 2006")
	}
}

// FormatInteractionContext summarises a shared session, e.g. "Played tennis together 2d ago".
func FormatInteractionContext(ic models.InteractionContext, now time.Time) string {
	activity := "Played together"
	if ic.SessionType != "" {
		activity = fmt.Sprintf("Played %s together", ic.SessionType)
	}
	if ic.OccurredAt.IsZero() {
		return activity
	}
	when := FormatTimeAgo(ic.OccurredAt, now)
	if now.Sub(ic.OccurredAt) > absoluteDateAfter {
		return activity + " on " + when
	}
	return activity + " " + when
}
