package intake_test

import (
	"os"
	"path/filepath"
	"testing"

	"dwcavalidate/internal/intake"
	"dwcavalidate/internal/validate"
)

func writeJSONL(t *testing.T, lines ...string) string {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write jsonl: %v", err)
	}
	return path
}

func TestJSONLSource_ReadsRecords(t *testing.T) {
	path := writeJSONL(t,
		`{"id":"1","context":"CORE","rowType":"Taxon","values":{"taxonID":"1"}}`,
		`{"id":"2","context":"CORE","rowType":"Taxon","values":{"taxonID":"2"}}`,
	)
	src, err := intake.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	var ids []string
	for {
		rec, ctx, ok := src.Next()
		if !ok {
			break
		}
		if ctx != validate.Core {
			t.Fatalf("expected Core context, got %s", ctx)
		}
		ids = append(ids, rec.ID())
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestJSONLSource_SkipsBlankLines(t *testing.T) {
	path := writeJSONL(t,
		`{"id":"1","context":"CORE","rowType":"Taxon","values":{}}`,
		``,
		`{"id":"2","context":"EXT","rowType":"Identification","values":{}}`,
	)
	src, err := intake.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	count := 0
	var lastCtx validate.EvaluationContext
	for {
		rec, ctx, ok := src.Next()
		if !ok {
			break
		}
		_ = rec
		lastCtx = ctx
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 records, got %d", count)
	}
	if lastCtx != validate.Extension {
		t.Fatalf("expected last context to be EXT, got %s", lastCtx)
	}
}

func TestJSONLSource_MalformedLineSurfacesViaNextRow(t *testing.T) {
	path := writeJSONL(t, `not json`)
	src, err := intake.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	_, err = src.NextRow()
	if err == nil {
		t.Fatal("expected an error decoding a malformed line")
	}
}
