package models

// Profile is the display metadata of a participant. It is owned by the user
// directory, never by the ledger.
type Profile struct {
	ID          string `json:"id" firestore:"uid"`
	DisplayName string `json:"display_name" firestore:"displayName"`
	AvatarRef   string `json:"avatar_ref,omitempty" firestore:"photoURL"`
	Email       string `json:"-" firestore:"email"`
	FCMToken    string `json:"-" firestore:"fcmToken"`
}

// Name never returns an empty string: participants without a profile are
// shown by id.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}
