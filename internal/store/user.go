package store

import (
	"context"
	"errors"
	"time"

	"github.com/feedgraph/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// UserRepository handles persistence for users.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(usersCollection)}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return types.User{}, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Posts == nil {
		user.Posts = []primitive.ObjectID{}
	}

	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id, status string) (types.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return types.User{}, err
	}

	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user types.User
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// AddPost appends a post reference to the user's post list.
func (r *UserRepository) AddPost(ctx context.Context, userID, postID primitive.ObjectID) error {
	update := bson.M{
		"$push": bson.M{"posts": postID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.updateByID(ctx, userID, update)
}

// RemovePost pulls a post reference from the user's post list.
func (r *UserRepository) RemovePost(ctx context.Context, userID, postID primitive.ObjectID) error {
	update := bson.M{
		"$pull": bson.M{"posts": postID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.updateByID(ctx, userID, update)
}

func (r *UserRepository) updateByID(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (types.User, error) {
	var user types.User
	if err := r.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// parseID converts a hex id to an ObjectID. Ids that cannot name a
// document are reported as ErrNotFound.
func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}
