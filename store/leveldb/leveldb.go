// Package leveldb 本地磁盘缓存后端, 进程重启后仍可回源最近的原始消息
package leveldb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"gopkg.in/yaml.v3"

	"github.com/zihuan-next/aibot/store"
	"github.com/zihuan-next/aibot/utils"
)

type database struct {
	db   *leveldb.DB
	path string
}

type config struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

func init() {
	store.Register("leveldb", func(node yaml.Node) any {
		conf := new(config)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		if conf.Path == "" {
			conf.Path = "data/leveldb-v1"
		}
		return &database{path: conf.Path}
	})
}

func (db *database) Open() error {
	d, err := leveldb.OpenFile(db.path, &opt.Options{
		WriteBuffer: 32 * opt.KiB,
	})
	if err != nil {
		return errors.Wrap(err, "open leveldb error")
	}
	db.db = d
	return nil
}

func (db *database) PutMessage(key, value string) error {
	return db.db.Put(utils.S2B(key), utils.S2B(value), nil)
}

func (db *database) GetMessage(key string) (string, error) {
	v, err := db.db.Get(utils.S2B(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "get leveldb error")
	}
	return string(v), nil
}

func (db *database) Close() error {
	return db.db.Close()
}
