package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoStore 基于 MongoDB 的画像存储，文档 _id 即 focus id
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// NewMongoStore 创建 MongoDB 画像存储，timeout 为单次操作上限（0 表示只依赖 ctx）
func NewMongoStore(coll *mongo.Collection, timeout time.Duration, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		coll:    coll,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "focus_mongo_store")),
	}
}

// ConnectMongo 连接 MongoDB 并校验可达
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// enabledFilter 启用画像的查询条件
func enabledFilter() bson.D {
	return bson.D{{Key: "enabled", Value: true}}
}

// idFilter 单个画像的查询条件
func idFilter(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// ListEnabled 实现 Store
func (s *MongoStore) ListEnabled(ctx context.Context) ([]*Profile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, enabledFilter(),
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list focus profiles: %w", err)
	}

	var out []*Profile
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode focus profiles: %w", err)
	}
	return out, nil
}

// Get 实现 Store
func (s *MongoStore) Get(ctx context.Context, id string) (*Profile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p Profile
	err := s.coll.FindOne(ctx, idFilter(id)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get focus profile %q: %w", id, err)
	}
	return &p, nil
}

// Save 实现 Writer，按 _id upsert
func (s *MongoStore) Save(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx, idFilter(p.ID), p, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save focus profile %q: %w", p.ID, err)
	}

	s.logger.Debug("focus profile saved", zap.String("focus_id", p.ID))
	return nil
}
