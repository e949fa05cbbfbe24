package validate_test

import (
	"os"
	"testing"

	"dwcavalidate/internal/validate"
)

func taxon(id string) *validate.MapRecord {
	return validate.NewMapRecord(id, "Taxon", nil)
}

func TestUniqueness_NoDuplicates(t *testing.T) {
	dir := t.TempDir()
	u, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		WorkingFolder: dir,
	})
	if err != nil {
		t.Fatalf("NewUniqueness: %v", err)
	}

	for _, id := range []string{"A", "B", "C"} {
		u.HandleEval(taxon(id), validate.Core)
	}

	acc := validate.NewMemoryAccumulator()
	if err := u.HandlePostIterate(acc); err != nil {
		t.Fatalf("HandlePostIterate: %v", err)
	}
	if len(acc.Findings) != 0 {
		t.Fatalf("expected 0 findings, got %d: %+v", len(acc.Findings), acc.Findings)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestUniqueness_Duplicates(t *testing.T) {
	dir := t.TempDir()
	u, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		WorkingFolder: dir,
	})
	if err != nil {
		t.Fatalf("NewUniqueness: %v", err)
	}

	for _, id := range []string{"A", "B", "A", "A"} {
		u.HandleEval(taxon(id), validate.Core)
	}

	acc := validate.NewMemoryAccumulator()
	if err := u.HandlePostIterate(acc); err != nil {
		t.Fatalf("HandlePostIterate: %v", err)
	}
	if len(acc.Findings) != 2 {
		t.Fatalf("expected 2 findings for 3 copies of A, got %d: %+v", len(acc.Findings), acc.Findings)
	}
	for _, f := range acc.Findings {
		if f.Value != "A" {
			t.Errorf("expected finding value A, got %q", f.Value)
		}
		if f.Kind != validate.KindUniqueness {
			t.Errorf("expected KindUniqueness, got %s", f.Kind)
		}
	}
	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestUniqueness_CaseInsensitiveDuplicate(t *testing.T) {
	dir := t.TempDir()
	u, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		WorkingFolder: dir,
	})
	if err != nil {
		t.Fatalf("NewUniqueness: %v", err)
	}
	u.HandleEval(taxon("abc"), validate.Core)
	u.HandleEval(taxon("ABC"), validate.Core)

	acc := validate.NewMemoryAccumulator()
	if err := u.HandlePostIterate(acc); err != nil {
		t.Fatalf("HandlePostIterate: %v", err)
	}
	if len(acc.Findings) != 1 {
		t.Fatalf("expected 1 case-insensitive duplicate finding, got %d", len(acc.Findings))
	}
	u.Close()
}

func TestUniqueness_BlankValuesIgnored(t *testing.T) {
	dir := t.TempDir()
	term := validate.NewTerm("taxonID", "http://rs.tdwg.org/dwc/terms/taxonID")
	u, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		Term:          &term,
		WorkingFolder: dir,
	})
	if err != nil {
		t.Fatalf("NewUniqueness: %v", err)
	}

	records := []*validate.MapRecord{
		validate.NewMapRecord("r1", "Taxon", map[string]string{"taxonID": ""}),
		validate.NewMapRecord("r2", "Taxon", map[string]string{"taxonID": "   "}),
		validate.NewMapRecord("r3", "Taxon", map[string]string{"taxonID": "1"}),
	}
	for _, r := range records {
		u.HandleEval(r, validate.Core)
	}

	acc := validate.NewMemoryAccumulator()
	if err := u.HandlePostIterate(acc); err != nil {
		t.Fatalf("HandlePostIterate: %v", err)
	}
	if len(acc.Findings) != 0 {
		t.Fatalf("expected 0 findings, got %d: %+v", len(acc.Findings), acc.Findings)
	}
	u.Close()
}

func TestUniqueness_RowTypeRestriction(t *testing.T) {
	dir := t.TempDir()
	u, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		RowType:       "Taxon",
		WorkingFolder: dir,
	})
	if err != nil {
		t.Fatalf("NewUniqueness: %v", err)
	}

	other := validate.NewMapRecord("A", "Occurrence", nil)
	u.HandleEval(other, validate.Core)  // wrong row type, should be skipped
	u.HandleEval(taxon("A"), validate.Core)
	u.HandleEval(taxon("A"), validate.Extension) // wrong context, should be skipped

	acc := validate.NewMemoryAccumulator()
	if err := u.HandlePostIterate(acc); err != nil {
		t.Fatalf("HandlePostIterate: %v", err)
	}
	if len(acc.Findings) != 0 {
		t.Fatalf("expected 0 findings (restriction filters out the duplicate), got %d", len(acc.Findings))
	}
	u.Close()
}

func TestUniqueness_CloseRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	u, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		WorkingFolder: dir,
	})
	if err != nil {
		t.Fatalf("NewUniqueness: %v", err)
	}
	u.HandleEval(taxon("A"), validate.Core)

	acc := validate.NewMemoryAccumulator()
	if err := u.HandlePostIterate(acc); err != nil {
		t.Fatalf("HandlePostIterate: %v", err)
	}
	sorted := u.SortedValueFile()
	if _, err := os.Stat(sorted); err != nil {
		t.Fatalf("expected sorted index to exist before close: %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(sorted); err == nil {
		t.Fatalf("expected sorted index to be removed after close")
	}
	// Close is idempotent.
	if err := u.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestUniqueness_RequiresContext(t *testing.T) {
	if _, err := validate.NewUniqueness(validate.UniquenessConfig{WorkingFolder: t.TempDir()}); err == nil {
		t.Fatal("expected error for missing context")
	}
}

func TestUniqueness_RequiresWorkingFolder(t *testing.T) {
	if _, err := validate.NewUniqueness(validate.UniquenessConfig{Context: validate.Core}); err == nil {
		t.Fatal("expected error for missing working folder")
	}
}
