// Package mongo stores users with embedded connected_channels and a posts
// log in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	users  *mongo.Collection
	posts  *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected database.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client: client,
		db:     db,
		users:  db.Collection(usersCollection),
		posts:  db.Collection(postsCollection),
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "joined_date", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: users indexes: %w", err)
	}
	_, err = s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: posts indexes: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return s.db.Name() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	joined := u.JoinedDate
	if joined.IsZero() {
		joined = u.LastActivity
	}
	update := bson.M{
		"$set": bson.M{
			"username":      u.Username,
			"first_name":    u.FirstName,
			"last_activity": u.LastActivity,
		},
		"$setOnInsert": bson.M{
			"joined_date":        joined,
			"connected_channels": bson.A{},
		},
	}
	_, err := s.users.UpdateOne(ctx, bson.M{"user_id": u.UserID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert user %d: %w", u.UserID, err)
	}
	return nil
}

func (s *Store) TouchUser(ctx context.Context, userID int64, at time.Time) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": bson.M{"last_activity": at}})
	if err != nil {
		return fmt.Errorf("mongo: touch user %d: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, store.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("mongo: get user %d: %w", userID, err)
	}
	return u, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	opts := options.Find().SetProjection(bson.M{"user_id": 1, "_id": 0}).SetSort(bson.M{"user_id": 1})
	cur, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list users: %w", err)
	}
	var rows []struct {
		UserID int64 `bson:"user_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: list users: %w", err)
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	return ids, nil
}

func (s *Store) RecentUsers(ctx context.Context, limit int) ([]model.User, error) {
	opts := options.Find().SetSort(bson.M{"joined_date": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: recent users: %w", err)
	}
	var out []model.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo: recent users: %w", err)
	}
	return out, nil
}

func (s *Store) ListChannels(ctx context.Context, userID int64) ([]model.Channel, error) {
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Channels, nil
}

// AddChannel pushes ch unless a channel with the same chat id is present.
func (s *Store) AddChannel(ctx context.Context, userID int64, ch model.Channel) error {
	ensure := bson.M{"$setOnInsert": bson.M{
		"joined_date":        ch.ConnectedAt,
		"last_activity":      ch.ConnectedAt,
		"connected_channels": bson.A{},
	}}
	if _, err := s.users.UpdateOne(ctx, bson.M{"user_id": userID}, ensure, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongo: add channel: %w", err)
	}
	filter := bson.M{
		"user_id":                    userID,
		"connected_channels.chat_id": bson.M{"$ne": ch.ChatRef},
	}
	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"connected_channels": ch}})
	if err != nil {
		return fmt.Errorf("mongo: add channel: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrDuplicate
	}
	return nil
}

func (s *Store) RemoveChannel(ctx context.Context, userID int64, chatRef string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$pull": bson.M{"connected_channels": bson.M{"chat_id": chatRef}}},
	)
	if err != nil {
		return fmt.Errorf("mongo: remove channel: %w", err)
	}
	if res.ModifiedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordPost(ctx context.Context, p model.Post) error {
	if _, err := s.posts.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("mongo: record post: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, now time.Time) (store.Stats, error) {
	var st store.Stats
	day := store.StartOfDay(now)
	counts := []struct {
		dst    *int64
		coll   *mongo.Collection
		filter bson.M
	}{
		{&st.Users, s.users, bson.M{}},
		{&st.ConnectedUsers, s.users, bson.M{"connected_channels.0": bson.M{"$exists": true}}},
		{&st.NewToday, s.users, bson.M{"joined_date": bson.M{"$gte": day}}},
		{&st.NewThisWeek, s.users, bson.M{"joined_date": bson.M{"$gte": now.AddDate(0, 0, -7)}}},
		{&st.ActiveToday, s.users, bson.M{"last_activity": bson.M{"$gte": day}}},
		{&st.Posts, s.posts, bson.M{}},
	}
	for _, c := range counts {
		n, err := c.coll.CountDocuments(ctx, c.filter)
		if err != nil {
			return st, fmt.Errorf("mongo: stats: %w", err)
		}
		*c.dst = n
	}

	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{"n": bson.M{"$size": bson.M{"$ifNull": bson.A{"$connected_channels", bson.A{}}}}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$n"}}}},
	}
	cur, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return st, fmt.Errorf("mongo: stats channels: %w", err)
	}
	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return st, fmt.Errorf("mongo: stats channels: %w", err)
	}
	if len(rows) > 0 {
		st.Channels = rows[0].Total
	}
	return st, nil
}

// Export dumps every collection of the database.
func (s *Store) Export(ctx context.Context) (store.Dump, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo: list collections: %w", err)
	}
	dump := make(store.Dump, len(names))
	for _, name := range names {
		cur, err := s.db.Collection(name).Find(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("mongo: export %s: %w", name, err)
		}
		var docs []bson.M
		if err := cur.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("mongo: export %s: %w", name, err)
		}
		rows := make([]any, len(docs))
		for i, d := range docs {
			rows[i] = d
		}
		dump[name] = rows
	}
	return dump, nil
}
