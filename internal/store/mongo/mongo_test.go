package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	ns := "postbot.users"

	mt.Run("get user decodes channels", func(mt *mtest.T) {
		joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "user_id", Value: int64(7)},
			{Key: "username", Value: "neo"},
			{Key: "joined_date", Value: joined},
			{Key: "connected_channels", Value: bson.A{
				bson.D{{Key: "chat_id", Value: "-1001"}, {Key: "title", Value: "News"}, {Key: "type", Value: "channel"}},
			}},
		}))
		s := New(mt.Client, mt.DB)
		u, err := s.GetUser(ctx, 7)
		require.NoError(mt, err)
		assert.Equal(mt, "neo", u.Username)
		assert.Equal(mt, joined, u.JoinedDate.UTC())
		require.Len(mt, u.Channels, 1)
		assert.Equal(mt, model.Channel{ChatRef: "-1001", Title: "News", Kind: "channel"}, u.Channels[0])
	})

	mt.Run("missing user", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		s := New(mt.Client, mt.DB)
		_, err := s.GetUser(ctx, 1)
		assert.ErrorIs(mt, err, store.ErrNotFound)
	})

	mt.Run("channels of unknown user are empty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		s := New(mt.Client, mt.DB)
		chans, err := s.ListChannels(ctx, 1)
		require.NoError(mt, err)
		assert.Empty(mt, chans)
	})

	mt.Run("add duplicate channel", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)
		s := New(mt.Client, mt.DB)
		err := s.AddChannel(ctx, 1, model.Channel{ChatRef: "-1001"})
		assert.ErrorIs(mt, err, store.ErrDuplicate)
	})

	mt.Run("add channel", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)
		s := New(mt.Client, mt.DB)
		require.NoError(mt, s.AddChannel(ctx, 1, model.Channel{ChatRef: "-1001"}))
	})

	mt.Run("remove missing channel", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}))
		s := New(mt.Client, mt.DB)
		assert.ErrorIs(mt, s.RemoveChannel(ctx, 1, "-1009"), store.ErrNotFound)
	})

	mt.Run("touch unknown user", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		s := New(mt.Client, mt.DB)
		assert.ErrorIs(mt, s.TouchUser(ctx, 1, time.Now()), store.ErrNotFound)
	})

	mt.Run("list user ids", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "user_id", Value: int64(1)}},
			bson.D{{Key: "user_id", Value: int64(2)}},
		))
		s := New(mt.Client, mt.DB)
		ids, err := s.ListUserIDs(ctx)
		require.NoError(mt, err)
		assert.Equal(mt, []int64{1, 2}, ids)
	})
}
