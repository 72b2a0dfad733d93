// Package mongodb 网络键值缓存后端.
// 写入与读取失败只会让上层降级到其余存储层, 不影响消息摄取.
package mongodb

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"

	"github.com/zihuan-next/aibot/store"
)

// MongoDatabaseName 默认数据库名
const MongoDatabaseName = "aibot"

const collectionName = "messages"

type database struct {
	mu     sync.Mutex // 保护连接句柄, 使重建连接与操作取用互斥
	client *mongo.Client
	coll   *mongo.Collection
	uri    string
	dbName string
	policy *store.ReconnectPolicy
}

type config struct {
	URL                  string `yaml:"url"`
	Database             string `yaml:"database"`
	ReconnectMaxAttempts uint   `yaml:"reconnect-max-attempts"`
	ReconnectInterval    uint   `yaml:"reconnect-interval"` // 秒
}

func init() {
	store.Register("mongodb", func(node yaml.Node) any {
		conf := new(config)
		_ = node.Decode(conf)
		if conf.URL == "" {
			// 与旧版行为一致, 允许从环境变量取连接串
			conf.URL = os.Getenv("MONGODB_URL")
		}
		if conf.URL == "" {
			return nil
		}
		if conf.Database == "" {
			conf.Database = MongoDatabaseName
		}
		return &database{
			uri:    conf.URL,
			dbName: conf.Database,
			policy: store.NewReconnectPolicy(conf.ReconnectMaxAttempts,
				time.Duration(conf.ReconnectInterval)*time.Second),
		}
	})
}

func (db *database) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(db.uri))
	if err != nil {
		return errors.Wrap(err, "open mongo connection error")
	}
	if err = cli.Ping(ctx, nil); err != nil {
		return errors.Wrap(err, "ping mongo error")
	}
	db.mu.Lock()
	db.client = cli
	db.coll = cli.Database(db.dbName).Collection(collectionName)
	db.mu.Unlock()
	return nil
}

func (db *database) collection() *mongo.Collection {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.coll
}

// retryable 只有网络类与超时类错误值得重建连接后重试
func retryable(err error) bool {
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

func (db *database) Open() error {
	return db.policy.Do("mongodb", db.connect, db.connect)
}

func (db *database) PutMessage(key, value string) error {
	return db.policy.Do("mongodb", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := db.collection().UpdateOne(ctx,
			bson.M{"_id": key},
			bson.M{"$set": bson.M{"value": value}},
			options.Update().SetUpsert(true))
		if err != nil && !retryable(err) {
			return store.Permanent(err)
		}
		return err
	}, db.connect)
}

func (db *database) GetMessage(key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	found := false
	err := db.policy.Do("mongodb", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := db.collection().FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		if err == nil {
			found = true
			return nil
		}
		if !retryable(err) {
			// 文档损坏等数据类错误, 重连解决不了
			return store.Permanent(err)
		}
		return err
	}, db.connect)
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.ErrNotFound
	}
	return doc.Value, nil
}

func (db *database) Close() error {
	db.mu.Lock()
	cli := db.client
	db.mu.Unlock()
	if cli == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cli.Disconnect(ctx)
}
