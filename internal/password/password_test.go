package password

import "testing"

func TestNewEntryRoundTrip(t *testing.T) {
	entry, err := NewEntry("Secr3t!23")
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if entry.Salt == "" || entry.Hash == "" {
		t.Fatalf("expected populated entry, got %+v", entry)
	}
	if !Compare("Secr3t!23", entry.Salt, entry.Hash) {
		t.Fatal("expected matching password to compare true")
	}
	if Compare("wrong", entry.Salt, entry.Hash) {
		t.Fatal("expected wrong password to compare false")
	}
}

func TestClashFindsAnyHistoricalPassword(t *testing.T) {
	passwords := []string{"first-pass", "second-pass", "third-pass"}
	history := make([]Entry, 0, len(passwords))
	for _, pw := range passwords {
		entry, err := NewEntry(pw)
		if err != nil {
			t.Fatalf("new entry: %v", err)
		}
		history = append(history, entry)
	}

	for _, pw := range passwords {
		if !Clash(pw, history) {
			t.Fatalf("expected clash for previously used password %q", pw)
		}
	}
	if Clash("never-used", history) {
		t.Fatal("expected no clash for a fresh password")
	}
}

func TestClashEmptyHistory(t *testing.T) {
	if Clash("anything", nil) {
		t.Fatal("expected no clash against an empty history")
	}
}
