// Package models defines the client-side data model of the folio blog API.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the authenticated user's cached profile.
type Profile struct {
	// ID is the provider-assigned numeric user ID.
	ID int64 `json:"id"`
	// Login is the provider handle (GitHub login).
	Login string `json:"login"`
	// Name is the display name.
	Name string `json:"name"`
	// AvatarURL points at the user's avatar image.
	AvatarURL string `json:"avatarUrl"`
	// Email is present only when the provider shares it.
	Email string `json:"email,omitempty"`
}

// Ref returns the public part of the profile.
func (p Profile) Ref() UserRef {
	return UserRef{ID: p.ID, Login: p.Login, Name: p.Name, AvatarURL: p.AvatarURL}
}

// UserRef identifies a user in comments and reaction lists.
type UserRef struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// DisplayName returns Name when set, otherwise Login.
func (u UserRef) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Login
}

// Comment is a post comment. Replies nest one level deep only.
type Comment struct {
	ID        int64           `json:"id"`
	PostID    string          `json:"postId"`
	Content   string          `json:"content"`
	Author    UserRef         `json:"author"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ParentID  *int64          `json:"parentId,omitempty"`
	Replies   []Comment       `json:"replies,omitempty"`
	Reactions ReactionSummary `json:"reactions,omitempty"`
}

// IsReply reports whether the comment belongs to a parent comment.
func (c Comment) IsReply() bool {
	return c.ParentID != nil
}

// Edited reports whether the comment was modified after creation.
func (c Comment) Edited() bool {
	return !c.UpdatedAt.Equal(c.CreatedAt)
}

// Clone returns a deep copy of the comment, including replies and reactions.
func (c Comment) Clone() Comment {
	out := c
	if c.ParentID != nil {
		id := *c.ParentID
		out.ParentID = &id
	}
	if c.Replies != nil {
		out.Replies = make([]Comment, len(c.Replies))
		for i, r := range c.Replies {
			out.Replies[i] = r.Clone()
		}
	}
	out.Reactions = c.Reactions.Clone()
	return out
}

// CommentPage is one page of top-level comments for a post.
type CommentPage struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// TargetType is the kind of object a reaction is attached to.
type TargetType string

const (
	// TargetPost marks reactions on a blog post.
	TargetPost TargetType = "post"
	// TargetComment marks reactions on a comment.
	TargetComment TargetType = "comment"
)

// ParseTargetType validates a textual target type.
func ParseTargetType(value string) (TargetType, error) {
	switch TargetType(strings.ToLower(strings.TrimSpace(value))) {
	case TargetPost:
		return TargetPost, nil
	case TargetComment:
		return TargetComment, nil
	default:
		return "", fmt.Errorf("unknown target type %q, expected post or comment", value)
	}
}
