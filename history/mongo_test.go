package history

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/naya/config"
	"github.com/BaSui01/naya/types"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoRecord_RoundTrip(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 7000000, time.UTC)
	rec := Record{ID: 7, Role: types.RoleAssistant, Content: "Halo!", TokenCount: 2, CreatedAt: at}

	data, err := bson.Marshal(toMongoRecord(rec))
	assert.NoError(t, err)

	var raw bson.M
	assert.NoError(t, bson.Unmarshal(data, &raw))
	assert.Equal(t, int64(7), raw["_id"])
	assert.Equal(t, "assistant", raw["role"])
	assert.Contains(t, raw, "token_count")
	assert.Contains(t, raw, "created_at")

	var back mongoRecord
	assert.NoError(t, bson.Unmarshal(data, &back))
	assert.Equal(t, rec, back.record())
}

func TestNewMongoStore_InvalidURI(t *testing.T) {
	_, err := NewMongoStore(context.Background(), config.MongoConfig{
		URI:        "not-a-mongo-uri",
		Database:   "naya",
		Collection: "chat_history",
	}, nil, nil)
	assert.Error(t, err)
}
