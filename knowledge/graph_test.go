package knowledge

import (
	"context"
	"testing"
)

func TestSyncDocumentRequiresDriver(t *testing.T) {
	doc := Document{ID: "doc-1", Path: "doc1.md", Title: "Doc One"}
	if err := SyncDocument(context.Background(), nil, doc); err == nil {
		t.Fatal("expected error with nil driver")
	}
}
