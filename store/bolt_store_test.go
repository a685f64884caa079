package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/tablex/record"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStoreWithOptions(testSchema(t), &BoltStoreOptions{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewBoltStoreWithOptions(t *testing.T) {
	Convey("NewBoltStoreWithOptions", t, func() {
		Convey("dbPath 必填", func() {
			_, err := NewBoltStoreWithOptions(testSchema(t), &BoltStoreOptions{})
			So(err, ShouldNotBeNil)
		})

		Convey("未知编解码器", func() {
			_, err := NewBoltStoreWithOptions(testSchema(t), &BoltStoreOptions{
				DBPath:   filepath.Join(t.TempDir(), "test.db"),
				ValCodec: "xml",
			})
			So(err, ShouldNotBeNil)
		})

		Convey("JSON 编解码器", func() {
			store, err := NewBoltStoreWithOptions(testSchema(t), &BoltStoreOptions{
				DBPath:   filepath.Join(t.TempDir(), "test.db"),
				ValCodec: "json",
			})
			So(err, ShouldBeNil)
			defer store.Close()

			ctx := context.Background()
			_, err = store.Insert(ctx, record.Record{"item_id": "item-1", "name": "w", "age": 1})
			So(err, ShouldBeNil)
			got, err := store.Get(ctx, Key{Partition: "item-1"})
			So(err, ShouldBeNil)
			So(got["name"], ShouldEqual, "w")
		})
	})
}

func TestBoltStoreCRUD(t *testing.T) {
	Convey("BoltDB 后端 CRUD", t, func() {
		ctx := context.Background()
		store := newTestBoltStore(t)

		Convey("插入后可读取", func() {
			_, err := store.Insert(ctx, record.Record{"item_id": "item-1", "name": "widget", "age": 30})
			So(err, ShouldBeNil)

			got, err := store.Get(ctx, Key{Partition: "item-1"})
			So(err, ShouldBeNil)
			So(got["name"], ShouldEqual, "widget")
		})

		Convey("重复插入返回 ErrAlreadyExists", func() {
			_, err := store.Insert(ctx, record.Record{"item_id": "item-1", "name": "a", "age": 1})
			So(err, ShouldBeNil)
			_, err = store.Insert(ctx, record.Record{"item_id": "item-1", "name": "b", "age": 2})
			So(errors.Is(err, ErrAlreadyExists), ShouldBeTrue)
		})

		Convey("读取不存在的记录返回 ErrNotFound", func() {
			_, err := store.Get(ctx, Key{Partition: "missing"})
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("稀疏更新保留未提供的字段", func() {
			_, err := store.Insert(ctx, record.Record{"item_id": "item-1", "name": "widget", "age": 30, "address": "beijing"})
			So(err, ShouldBeNil)

			updated, err := store.Update(ctx, Key{Partition: "item-1"}, record.Record{"age": 31})
			So(err, ShouldBeNil)
			So(updated["name"], ShouldEqual, "widget")
			So(updated["address"], ShouldEqual, "beijing")
		})

		Convey("更新不存在的记录返回 ErrNotFound", func() {
			_, err := store.Update(ctx, Key{Partition: "missing"}, record.Record{"age": 1})
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("删除返回记录此前是否存在", func() {
			_, err := store.Insert(ctx, record.Record{"item_id": "item-1", "name": "w", "age": 1})
			So(err, ShouldBeNil)

			deleted, err := store.Delete(ctx, Key{Partition: "item-1"})
			So(err, ShouldBeNil)
			So(deleted, ShouldBeTrue)

			deleted, err = store.Delete(ctx, Key{Partition: "item-1"})
			So(err, ShouldBeNil)
			So(deleted, ShouldBeFalse)
		})

		Convey("Ping", func() {
			So(store.Ping(ctx), ShouldBeNil)
		})
	})
}

func TestBoltStoreQuery(t *testing.T) {
	Convey("BoltDB 后端查询", t, func() {
		ctx := context.Background()
		store := newTestBoltStore(t)

		for i := 0; i < 25; i++ {
			name := "widget"
			if i%2 == 0 {
				name = "Gadget Pro"
			}
			_, err := store.Insert(ctx, record.Record{
				"item_id": fmt.Sprintf("item-%02d", i),
				"name":    name,
				"age":     i % 5,
			})
			So(err, ShouldBeNil)
		}

		Convey("数值字段按相等匹配", func() {
			result, err := store.Query(ctx, "age", "3", 100, "")
			So(err, ShouldBeNil)
			So(result.TotalCount, ShouldEqual, 5)
		})

		Convey("字符串字段大小写无关子串匹配", func() {
			result, err := store.Query(ctx, "name", "gadget", 100, "")
			So(err, ShouldBeNil)
			So(result.TotalCount, ShouldEqual, 13)
		})

		Convey("游标分页遍历不重不漏", func() {
			seen := map[string]bool{}
			token := ""
			for {
				result, err := store.Query(ctx, "name", "", 10, token)
				So(err, ShouldBeNil)
				for _, rec := range result.Records {
					id := rec["item_id"].(string)
					So(seen[id], ShouldBeFalse)
					seen[id] = true
				}
				if result.NextToken == "" {
					break
				}
				token = result.NextToken
			}
			So(len(seen), ShouldEqual, 25)
		})
	})
}
