package record

import (
	"regexp"
	"sync"
	"testing"
	"time"
)

var recordIDPattern = regexp.MustCompile(`^R\d{14}$`)

func TestIDGenerator_Format(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 5, 7, 123, time.Local)
	g := NewIDGenerator(func() time.Time { return now })

	id := g.Next(PrefixRecord)
	if id != "R20240315090507" {
		t.Errorf("expected R20240315090507, got %s", id)
	}
	if !recordIDPattern.MatchString(id) {
		t.Errorf("id %s does not match %s", id, recordIDPattern)
	}
	if got := g.Next(PrefixExamination); got != "E20240315090507" {
		t.Errorf("expected prefixes to be tracked separately, got %s", got)
	}
}

func TestIDGenerator_SameSecondAdvances(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 59, 59, 0, time.Local)
	g := NewIDGenerator(func() time.Time { return now })

	want := []string{"R20240315235959", "R20240316000000", "R20240316000001"}
	for _, w := range want {
		if got := g.Next(PrefixRecord); got != w {
			t.Errorf("expected %s, got %s", w, got)
		}
	}
}

func TestIDGenerator_ConcurrentUnique(t *testing.T) {
	now := time.Now()
	g := NewIDGenerator(func() time.Time { return now })

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Next(PrefixPrescription)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
