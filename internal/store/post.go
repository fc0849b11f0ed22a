package store

import (
	"context"
	"time"

	"github.com/feedgraph/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const postsCollection = "posts"

// PostRepository handles persistence for posts.
type PostRepository struct {
	col *mongo.Collection
}

func NewPostRepository(db *mongo.Database) *PostRepository {
	return &PostRepository{col: db.Collection(postsCollection)}
}

// postDocument is a post as returned by the populating pipelines.
type postDocument struct {
	types.Post `bson:",inline"`
	CreatorDoc *types.User `bson:"creatorDoc,omitempty"`
}

func (d postDocument) toPost() types.Post {
	post := d.Post
	post.Creator = d.CreatorDoc
	return post
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now().UTC()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = now
	post.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, post); err != nil {
		return types.Post{}, err
	}
	return post, nil
}

// Get loads a post with its creator populated.
func (r *PostRepository) Get(ctx context.Context, id string) (types.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return types.Post{}, err
	}

	pipeline := mongo.Pipeline{matchStage(bson.M{"_id": oid}), {{Key: "$limit", Value: 1}}}
	pipeline = append(pipeline, populateCreator()...)

	posts, err := r.aggregate(ctx, pipeline)
	if err != nil {
		return types.Post{}, err
	}
	if len(posts) == 0 {
		return types.Post{}, ErrNotFound
	}
	return posts[0], nil
}

// List returns one page of posts, newest first, with creators populated,
// and the total number of posts in the collection.
func (r *PostRepository) List(ctx context.Context, offset, limit int) ([]types.Post, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 2
	}

	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$skip", Value: int64(offset)}},
		{{Key: "$limit", Value: int64(limit)}},
	}
	pipeline = append(pipeline, populateCreator()...)

	posts, err := r.aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	return posts, int(total), nil
}

// ListByIDs loads the given posts in the order of ids. Ids without a
// matching document are skipped.
func (r *PostRepository) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.Post, error) {
	if len(ids) == 0 {
		return []types.Post{}, nil
	}

	pipeline := mongo.Pipeline{matchStage(bson.M{"_id": bson.M{"$in": ids}})}
	pipeline = append(pipeline, populateCreator()...)

	found, err := r.aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	byID := make(map[primitive.ObjectID]types.Post, len(found))
	for _, post := range found {
		byID[post.ID] = post
	}
	posts := make([]types.Post, 0, len(found))
	for _, id := range ids {
		if post, ok := byID[id]; ok {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

func (r *PostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"title":     post.Title,
		"content":   post.Content,
		"imageUrl":  post.ImageURL,
		"updatedAt": post.UpdatedAt,
	}}
	result, err := r.col.UpdateByID(ctx, post.ID, update)
	if err != nil {
		return types.Post{}, err
	}
	if result.MatchedCount == 0 {
		return types.Post{}, ErrNotFound
	}
	return post, nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]types.Post, error) {
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []postDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	posts := make([]types.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.toPost())
	}
	return posts, nil
}

func matchStage(filter bson.M) bson.D {
	return bson.D{{Key: "$match", Value: filter}}
}

// populateCreator resolves the creator reference into creatorDoc.
func populateCreator() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "creator"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "creatorDoc"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$creatorDoc"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}
