package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

var rootBucket = []byte("runs")

// ErrNotFound 没有记录
var ErrNotFound = errors.Errorf("journal entry not found")

// Entry 一次修复记录
type Entry struct {
	ID           string   `json:"id"`
	Path         string   `json:"path"`
	Rules        []string `json:"rules"`
	Replacements int      `json:"replacements"`
	Changed      bool     `json:"changed"`
	Written      bool     `json:"written"`
	FixedAt      int64    `json:"fixedAt"`
}

// EntryFromReport 根据修复结果生成记录，只记录命中的规则
func EntryFromReport(r *htmlfix.Report) *Entry {
	entry := &Entry{
		Path:         r.Path,
		Replacements: r.Replacements,
		Changed:      r.Changed,
		Written:      r.Written,
	}
	for _, rule := range r.Rules {
		if rule.Replacements > 0 {
			entry.Rules = append(entry.Rules, rule.Name)
		}
	}
	return entry
}

// Repo 修复记录数据访问层，每个文件一个子 bucket，按写入顺序递增
type Repo struct {
	db *bbolt.DB
}

// Open 打开（或创建）记录文件
func Open(path string) (*Repo, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.WrapPrefix(err, "open journal "+path, 0)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.WrapPrefix(err, "init journal", 0)
	}
	return &Repo{db: db}, nil
}

// Close 关闭记录文件
func (r *Repo) Close() error {
	return r.db.Close()
}

// Create 写入一条记录，未设置 ID 和时间时自动补全
func (r *Repo) Create(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.FixedAt == 0 {
		entry.FixedAt = time.Now().UnixMilli()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(entry.Path))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(itob(seq), data)
	})
}

// ListByPath 按时间倒序列出文件的记录，limit <= 0 表示不限制
func (r *Repo) ListByPath(ctx context.Context, path string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(rootBucket).Bucket([]byte(path))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// Latest 获取文件最新的记录
func (r *Repo) Latest(ctx context.Context, path string) (*Entry, error) {
	entries, err := r.ListByPath(ctx, path, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.WrapPrefix(ErrNotFound, path, 0)
	}
	return &entries[0], nil
}

// Paths 列出有记录的文件
func (r *Repo) Paths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var paths []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).ForEachBucket(func(k []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	return paths, err
}

// DeleteByPath 删除文件的所有记录
func (r *Repo) DeleteByPath(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(rootBucket).DeleteBucket([]byte(path))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
