package models

import "time"

// Participant is the read-only profile view of another user.
type Participant struct {
	ID         string    `db:"id" json:"id" bson:"_id"`
	FullName   string    `db:"full_name" json:"full_name" bson:"fullName"`
	ProfilePic string    `db:"profile_pic" json:"profile_pic,omitempty" bson:"profilePic,omitempty"`
	Bio        string    `db:"bio" json:"bio,omitempty" bson:"bio,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at" bson:"createdAt"`
}

// ParticipantSummary is the sidebar view of a participant for the caller.
type ParticipantSummary struct {
	Participant
	Online bool `json:"online"`
	Unseen int  `json:"unseen"`
}
