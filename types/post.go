package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UnchangedImageURL is the placeholder clients submit on update when the
// post keeps its current image.
const UnchangedImageURL = "undefined"

// Post represents a feed entry written by a user.
type Post struct {
	// ID is the unique identifier assigned by the store.
	ID primitive.ObjectID `json:"_id" bson:"_id,omitempty"`

	// Title is the headline of the post.
	Title string `json:"title" bson:"title"`

	// Content is the body text of the post.
	Content string `json:"content" bson:"content"`

	// ImageURL is the public path of the image attached to the post,
	// e.g. "/images/2024-01-01T10-00-00.000Z-cat.png".
	ImageURL string `json:"imageUrl" bson:"imageUrl"`

	// CreatorID references the owning user. It never changes after the
	// post is created.
	CreatorID primitive.ObjectID `json:"creatorId" bson:"creator"`

	// Creator is the populated owning user. It is filled by read
	// operations that resolve the creator reference and is not persisted.
	Creator *User `json:"creator,omitempty" bson:"-"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// UpdatedAt is the timestamp of the most recent update to the post.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// PostInput carries post fields as submitted by a client.
type PostInput struct {
	Title    string
	Content  string
	ImageURL string
}

// PostPage is one page of the post listing together with the total
// number of posts across all pages.
type PostPage struct {
	Posts      []Post
	TotalPosts int
}
