package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/payment"
	"github.com/surajcodesml/a2a/pkg/paywall"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type dummyTool struct {
	name   string
	schema string
}

func (d *dummyTool) Definition() Definition {
	return Definition{Name: d.name, Description: "test tool", InputSchema: json.RawMessage(d.schema)}
}

func (d *dummyTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	return "ran with " + string(input), nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	requests []paywall.FetchRequest
	body     string
	err      error
}

func (f *fakeFetcher) Fetch(_ context.Context, req paywall.FetchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.body, f.err
}

type fakePayer struct {
	requests []payment.Request
	body     string
	err      error
}

func (f *fakePayer) Pay(_ context.Context, req payment.Request) (*payment.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Result{Body: f.body, Paid: true}, nil
}

func testAudit(t *testing.T) *audit.Logger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	l, err := audit.New(db)
	if err != nil {
		t.Fatal(err)
	}
	return l
}
