package instrument

import "testing"

func TestParseIdentification_Valid(t *testing.T) {
	id, err := ParseIdentification("Rohde&Schwarz,FSW-43,101234,4.90\r\n")
	if err != nil {
		t.Fatalf("ParseIdentification() returned error: %v", err)
	}
	if id.Manufacturer != "Rohde&Schwarz" || id.Model != "FSW-43" {
		t.Errorf("unexpected identity: %+v", id)
	}
	if id.Serial != "101234" || id.Firmware != "4.90" {
		t.Errorf("unexpected serial/firmware: %+v", id)
	}
}

func TestParseIdentification_TrimsFieldPadding(t *testing.T) {
	id, err := ParseIdentification("Keysight Technologies, E8257D , US1234 , C.01.02")
	if err != nil {
		t.Fatalf("ParseIdentification() returned error: %v", err)
	}
	if id.Model != "E8257D" {
		t.Errorf("model not trimmed: %q", id.Model)
	}
}

func TestParseIdentification_WrongFieldCount(t *testing.T) {
	if _, err := ParseIdentification("FSW-43,101234"); err == nil {
		t.Fatal("expected error for two-field reply")
	}
	if _, err := ParseIdentification(""); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestMatchesModel(t *testing.T) {
	id := Identification{Model: "SMW200A"}
	if !id.MatchesModel(nil) {
		t.Error("empty accepted list should match any model")
	}
	if !id.MatchesModel([]string{"NGP800", "smw200a"}) {
		t.Error("model match should be case-insensitive")
	}
	if id.MatchesModel([]string{"NGP800"}) {
		t.Error("unrelated model should not match")
	}
}
