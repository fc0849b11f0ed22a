package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultUserStatus is assigned to every newly registered user.
const DefaultUserStatus = "I am new!"

// User represents an account in the feed system.
// It is stored as a document in the users collection.
type User struct {
	// ID is the unique identifier assigned by the store.
	ID primitive.ObjectID `json:"_id" bson:"_id,omitempty"`

	// Email is the unique login address of the user.
	Email string `json:"email" bson:"email"`

	// Password stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	Password string `json:"-" bson:"password"`

	// Name is the user's display name.
	Name string `json:"name" bson:"name"`

	// Status is a free-text status line shown on the user's feed.
	Status string `json:"status" bson:"status"`

	// Posts holds references to the posts created by the user, in
	// creation order. It mirrors Post.CreatorID and is maintained by the
	// service layer on every create and delete.
	Posts []primitive.ObjectID `json:"posts" bson:"posts"`

	// CreatedAt is the timestamp when the user registered.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// UpdatedAt is the timestamp of the most recent change to the user.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserInput carries registration fields as submitted by a client.
type UserInput struct {
	Email    string
	Name     string
	Password string
}
