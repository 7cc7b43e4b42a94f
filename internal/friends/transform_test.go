package friends

import (
	"reflect"
	"testing"
	"time"

	"github.com/playmates/backend/internal/models"
)

func profile(id string) models.Profile {
	return models.Profile{ID: id, Username: "user-" + id}
}

func TestDeduplicateUsers(t *testing.T) {
	in := []models.SuggestedFriend{
		{Profile: profile("1"), Score: 1},
		{Profile: profile("2")},
		{Profile: profile("1"), Score: 9},
	}

	got := DeduplicateUsers(in)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got[0].Score != 1 {
		t.Fatalf("expected first occurrence to win got score %d", got[0].Score)
	}
}

func TestSortSuggestedFriendsIsDeterministic(t *testing.T) {
	in := []models.SuggestedFriend{
		{Profile: profile("3"), Score: 5},
		{Profile: profile("1"), Score: 3},
		{Profile: profile("2"), Score: 5},
	}

	for i := 0; i < 5; i++ {
		got := SortSuggestedFriends(in)
		ids := []string{got[0].ID, got[1].ID, got[2].ID}
		if !reflect.DeepEqual(ids, []string{"2", "3", "1"}) {
			t.Fatalf("unexpected order %v", ids)
		}
	}
	if in[0].ID != "3" {
		t.Fatal("input slice must not be reordered")
	}
}

func TestSortRecentMembersAndRequests(t *testing.T) {
	base := time.Date(2024, time.April, 10, 12, 0, 0, 0, time.UTC)
	members := SortRecentMembers([]models.RecentMember{
		{Profile: profile("b"), Interaction: models.InteractionContext{OccurredAt: base}},
		{Profile: profile("c"), Interaction: models.InteractionContext{OccurredAt: base.Add(time.Hour)}},
		{Profile: profile("a"), Interaction: models.InteractionContext{OccurredAt: base}},
	})
	if members[0].ID != "c" || members[1].ID != "a" || members[2].ID != "b" {
		t.Fatalf("unexpected member order: %s %s %s", members[0].ID, members[1].ID, members[2].ID)
	}

	requests := SortFriendRequests([]models.FriendRequest{
		{ID: "r2", CreatedAt: base},
		{ID: "r1", CreatedAt: base},
		{ID: "r3", CreatedAt: base.Add(time.Minute)},
	})
	if requests[0].ID != "r3" || requests[1].ID != "r1" || requests[2].ID != "r2" {
		t.Fatalf("unexpected request order: %s %s %s", requests[0].ID, requests[1].ID, requests[2].ID)
	}

	friends := SortFriends([]models.Friend{
		{Profile: models.Profile{ID: "2", Username: "zed", FullName: "Bea"}},
		{Profile: models.Profile{ID: "1", Username: "amy"}},
		{Profile: models.Profile{ID: "3", Username: "bea"}},
	})
	if friends[0].ID != "1" || friends[1].ID != "2" || friends[2].ID != "3" {
		t.Fatalf("unexpected friend order: %s %s %s", friends[0].ID, friends[1].ID, friends[2].ID)
	}
}

func TestFilterHelpers(t *testing.T) {
	suggestions := FilterSuggestedFriends([]models.SuggestedFriend{
		{Profile: profile("1")}, {Profile: profile("2")},
	}, func(s models.SuggestedFriend) bool { return s.ID != "1" })
	if len(suggestions) != 1 || suggestions[0].ID != "2" {
		t.Fatalf("unexpected suggestions: %+v", suggestions)
	}

	members := FilterRecentMembers([]models.RecentMember{{Profile: profile("1")}}, nil)
	if len(members) != 1 {
		t.Fatalf("nil predicate should keep everything got %+v", members)
	}
}

func TestTransformSuggestedFriendDefaults(t *testing.T) {
	got, err := TransformSuggestedFriend(models.Record{"id": "u1", "username": "ali"}, []models.Sport{models.SportTennis})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.AvatarURL != nil {
		t.Fatalf("expected nil avatar got %v", *got.AvatarURL)
	}
	if got.FavoriteSports == nil || len(got.FavoriteSports) != 0 {
		t.Fatalf("expected empty sports got %#v", got.FavoriteSports)
	}
	if got.SharedSports == nil || got.Score != 0 {
		t.Fatalf("unexpected signals: %+v", got)
	}
}

func TestTransformSuggestedFriendSignals(t *testing.T) {
	record := models.Record{
		"id":              "u2",
		"username":        "bruno",
		"full_name":       "Bruno Costa",
		"avatar_url":      "https://cdn.example.com/bruno.png",
		"favorite_sports": []any{"tennis", "chess", "padel", "tennis"},
		"mutual_sessions": int64(3),
	}

	got, err := TransformSuggestedFriend(record, []models.Sport{models.SportPadel, models.SportTennis})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.AvatarURL == nil || *got.AvatarURL != "https://cdn.example.com/bruno.png" {
		t.Fatalf("unexpected avatar: %v", got.AvatarURL)
	}
	wantSports := []models.Sport{models.SportTennis, models.SportPadel}
	if !reflect.DeepEqual(got.FavoriteSports, wantSports) {
		t.Fatalf("expected unknown and duplicate tags dropped got %v", got.FavoriteSports)
	}
	if !reflect.DeepEqual(got.SharedSports, wantSports) {
		t.Fatalf("unexpected shared sports %v", got.SharedSports)
	}
	if got.MutualSessions != 3 || got.Score != 8 {
		t.Fatalf("expected score 2*3+2 got %+v", got)
	}
}

func TestTransformRejectsRecordsWithoutID(t *testing.T) {
	if _, err := TransformSuggestedFriend(models.Record{"username": "ghost"}, nil); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := TransformFriendRequest(models.Record{"id": "u1"}, "me"); err == nil {
		t.Fatal("expected error for missing request id")
	}
}

func TestTransformRecentMember(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	got, err := TransformRecentMember(models.Record{
		"id":           "u3",
		"username":     "chen",
		"session_id":   "s1",
		"session_type": "tennis",
		"occurred_at":  now.Add(-49 * time.Hour).Format(time.RFC3339),
	}, now)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.Interaction.SessionType != models.SportTennis || got.Interaction.SessionID != "s1" {
		t.Fatalf("unexpected interaction: %+v", got.Interaction)
	}
	if got.Summary != "Played tennis together 2d ago" {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
}

func TestTransformFriendRequestDirection(t *testing.T) {
	created := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	record := models.Record{
		"request_id":   "r1",
		"requester_id": "me",
		"addressee_id": "u2",
		"created_at":   created,
		"id":           "u2",
		"username":     "alice",
	}

	sent, err := TransformFriendRequest(record, "me")
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if sent.Direction != models.DirectionSent || sent.User.ID != "u2" || !sent.CreatedAt.Equal(created) {
		t.Fatalf("unexpected request: %+v", sent)
	}

	received, err := TransformFriendRequest(record, "u2")
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if received.Direction != models.DirectionReceived {
		t.Fatalf("expected received direction got %s", received.Direction)
	}
}

func TestTransformFriendOnlineVisibility(t *testing.T) {
	online := map[string]bool{"u1": true, "u2": true}

	shared, err := TransformFriend(models.Record{"id": "u1", "relationship_id": "r1", "show_online_status": true}, online)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if shared.Online == nil || !*shared.Online {
		t.Fatalf("expected online flag got %v", shared.Online)
	}

	hidden, err := TransformFriend(models.Record{"id": "u2", "relationship_id": "r2", "show_online_status": false}, online)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if hidden.Online != nil {
		t.Fatalf("expected hidden online flag got %v", *hidden.Online)
	}

	defaulted, err := TransformFriend(models.Record{"id": "u3", "relationship_id": "r3", "show_online_status": nil}, online)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if defaulted.Online == nil || *defaulted.Online {
		t.Fatalf("expected offline flag for absent preference got %v", defaulted.Online)
	}

	noPresence, err := TransformFriend(models.Record{"id": "u1", "relationship_id": "r1"}, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if noPresence.Online != nil {
		t.Fatal("expected no online flag without presence data")
	}
}

func TestTransformPrivacySettings(t *testing.T) {
	if got := TransformPrivacySettings(nil); got != models.DefaultPrivacySettings() {
		t.Fatalf("expected defaults got %+v", got)
	}

	got := TransformPrivacySettings(models.Record{"friend_request_permission": "no_one", "show_online_status": false})
	want := models.PrivacySettings{FriendRequestPermission: models.PermissionNoOne, ShowOnlineStatus: false}
	if got != want {
		t.Fatalf("expected %+v got %+v", want, got)
	}

	got = TransformPrivacySettings(models.Record{"friend_request_permission": "bogus"})
	if got != models.DefaultPrivacySettings() {
		t.Fatalf("expected unknown permission to fall back got %+v", got)
	}
}

func TestTransformSearchResult(t *testing.T) {
	rel := &models.Relationship{RequesterID: "me", AddresseeID: "u2", Status: models.RelationshipPending}
	got, err := TransformSearchResult(models.Record{"id": "u2", "username": "alice"}, rel, "me")
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.Status != models.FriendshipPendingSent {
		t.Fatalf("expected pending_sent got %s", got.Status)
	}

	got, err = TransformSearchResult(models.Record{"id": "u2", "username": "alice"}, nil, "me")
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.Status != models.FriendshipNone {
		t.Fatalf("expected none got %s", got.Status)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{name: "seconds", at: now.Add(-30 * time.Second), want: "just now"},
		{name: "future", at: now.Add(time.Hour), want: "just now"},
		{name: "minutes", at: now.Add(-5 * time.Minute), want: "5m ago"},
		{name: "hours", at: now.Add(-3 * time.Hour), want: "3h ago"},
		{name: "days", at: now.Add(-6 * 24 * time.Hour), want: "6d ago"},
		{name: "week boundary", at: now.Add(-7 * 24 * time.Hour), want: "7d ago"},
		{name: "absolute", at: now.Add(-8 * 24 * time.Hour), want: "Jun 2, 2024"},
		{name: "zero", at: time.Time{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimeAgo(tt.at, now); got != tt.want {
				t.Fatalf("expected %q got %q", tt.want, got)
			}
		})
	}
}

func TestFormatInteractionContext(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

	got := FormatInteractionContext(models.InteractionContext{SessionType: models.SportPadel, OccurredAt: now.Add(-20 * 24 * time.Hour)}, now)
	if got != "Played padel together on May 21, 2024" {
		t.Fatalf("unexpected summary %q", got)
	}

	if got := FormatInteractionContext(models.InteractionContext{}, now); got != "Played together" {
		t.Fatalf("unexpected summary %q", got)
	}
}
