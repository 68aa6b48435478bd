package mgo

import (
	"context"
	"testing"
	"time"

	mgo "PPGateway/data/database/mgo/mongoutil"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestCloseReleasesClient(t *testing.T) {
	// 驱动懒连接，不需要真实的 mongod
	cli, err := mongo.Connect(context.Background(),
		options.Client().ApplyURI("mongodb://127.0.0.1:1").SetServerSelectionTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	globalMgr.mu.Lock()
	globalMgr.client = mgo.WrapClient(cli, "gw_test")
	globalMgr.mu.Unlock()

	if _, ok := TryGetDB(); !ok {
		t.Fatal("db should be available before close")
	}
	if err := Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := TryGetDB(); ok {
		t.Fatal("db still available after close")
	}
	// 重复关闭无副作用
	if err := Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
