package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/naya/config"
	"github.com/BaSui01/naya/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// =============================================================================
// 🍃 MongoDB 历史存储
// =============================================================================

// mongoRecord chat_history 集合中的文档
type mongoRecord struct {
	ID         int64     `bson:"_id"`
	Role       string    `bson:"role"`
	Content    string    `bson:"content"`
	TokenCount int       `bson:"token_count"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toMongoRecord(r Record) mongoRecord {
	return mongoRecord{
		ID:         r.ID,
		Role:       string(r.Role),
		Content:    r.Content,
		TokenCount: r.TokenCount,
		CreatedAt:  r.CreatedAt,
	}
}

func (m mongoRecord) record() Record {
	return Record{
		ID:         m.ID,
		Role:       types.Role(m.Role),
		Content:    m.Content,
		TokenCount: m.TokenCount,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

// sequenceDoc 计数器文档，ID 自增用
type sequenceDoc struct {
	Seq int64 `bson:"seq"`
}

// MongoStore 基于 MongoDB 的历史存储
type MongoStore struct {
	client   *mongo.Client
	coll     *mongo.Collection
	counters *mongo.Collection
	counter  Counter
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewMongoStore 连接 MongoDB 并校验可达性
func NewMongoStore(ctx context.Context, cfg config.MongoConfig, counter Counter, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = Estimator
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("history: connect mongo: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("history: ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		coll:     db.Collection(cfg.Collection),
		counters: db.Collection(cfg.Collection + "_counters"),
		counter:  counter,
		logger:   logger.With(zap.String("component", "history_mongo")),
		now:      time.Now,
	}

	s.logger.Info("mongo history store connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))
	return s, nil
}

// Backend 实现 backendNamer
func (s *MongoStore) Backend() string { return "mongo" }

func (s *MongoStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	var doc sequenceDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: s.coll.Name()}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Save 分配序号后插入文档
func (s *MongoStore) Save(ctx context.Context, rec Record) (Record, error) {
	if err := s.checkOpen(); err != nil {
		return Record{}, err
	}
	rec, err := prepare(rec, s.counter, s.now())
	if err != nil {
		return Record{}, err
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("history: allocate id: %w", err)
	}
	rec.ID = id

	if _, err := s.coll.InsertOne(ctx, toMongoRecord(rec)); err != nil {
		return Record{}, fmt.Errorf("history: insert record: %w", err)
	}
	return rec, nil
}

// History 按 created_at 降序取 limit 条再翻转
func (s *MongoStore) History(ctx context.Context, limit int) ([]Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))
	cursor, err := s.coll.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("history: query records: %w", err)
	}

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("history: decode records: %w", err)
	}

	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	reverse(out)
	return out, nil
}

// Clear 删除集合中的全部文档
func (s *MongoStore) Clear(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("history: clear records: %w", err)
	}
	s.logger.Info("chat history cleared", zap.Int64("documents", res.DeletedCount))
	return nil
}

// Ping 实现 Store
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (s *MongoStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
