package parse

import "testing"

func TestExtractCutoutFieldsWithChangeLine(t *testing.T) {
	text := "National Daily Pork Report\n" +
		"Date Loads Carcass Loin Butt Pic Rib Ham Belly\n" +
		"02/09/2026 120 95.50 120.25 110.00 105.75 85.00 90.25 130.50\n" +
		"Change: 1.25 2.00 -1.50 0.75 0.50 -0.25 3.00\n"

	fields, found := extractCutoutFields(text, "02/09/2026")
	if !found {
		t.Fatalf("expected a match for the target date")
	}
	if fields["carcass"] != "95.50" {
		t.Fatalf("carcass = %v, want 95.50", fields["carcass"])
	}
	if fields["change_belly"] != "3.00" {
		t.Fatalf("change_belly = %v, want 3.00", fields["change_belly"])
	}
}

func TestExtractCutoutFieldsNoMatchingDate(t *testing.T) {
	text := "Date Loads Carcass Loin Butt Pic Rib Ham Belly\n" +
		"02/06/2026 120 95.50 120.25 110.00 105.75 85.00 90.25 130.50\n"

	_, found := extractCutoutFields(text, "02/09/2026")
	if found {
		t.Fatalf("expected no match when the target date has not posted yet")
	}
}

func TestExtractCutoutFieldsNoHeader(t *testing.T) {
	_, found := extractCutoutFields("some unrelated PDF text", "02/09/2026")
	if found {
		t.Fatalf("expected no match without the cutout table header")
	}
}
