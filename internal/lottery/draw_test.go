package lottery

import (
	"errors"
	"sort"
	"testing"
)

func TestShuffleKeepsMultiset(t *testing.T) {
	entries := GenerateEntries(20)
	Shuffle(entries, NewSeededSource(7))

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	sort.Strings(names)
	want := GenerateEntries(20)
	for i := range want {
		if names[i] != want[i].Name {
			t.Fatalf("shuffle lost or duplicated entries: got=%v", names)
		}
	}
}

func TestShuffleIsDeterministicPerSeed(t *testing.T) {
	a := GenerateEntries(10)
	b := GenerateEntries(10)
	Shuffle(a, NewSeededSource(99))
	Shuffle(b, NewSeededSource(99))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different order at %d: %q vs %q", i, a[i].Name, b[i].Name)
		}
	}
}

func TestSecureSourceFallsBackOnError(t *testing.T) {
	originalRandom := secureRandomInt
	secureRandomInt = func(max int64) (int64, error) {
		return 0, errors.New("entropy unavailable")
	}
	defer func() {
		secureRandomInt = originalRandom
	}()

	src := NewSecureSource()
	if got := src.IntN(5); got < 0 || got >= 5 {
		t.Fatalf("IntN fallback out of range: %d", got)
	}
	if got := src.Float64(); got < 0 || got >= 1 {
		t.Fatalf("Float64 fallback out of range: %f", got)
	}
}

func TestSecureSourceUsesCryptoValue(t *testing.T) {
	originalRandom := secureRandomInt
	secureRandomInt = func(max int64) (int64, error) {
		return max - 1, nil
	}
	defer func() {
		secureRandomInt = originalRandom
	}()

	if got := NewSecureSource().IntN(8); got != 7 {
		t.Fatalf("IntN() = %d, want 7", got)
	}
}

func TestStartOffsetRange(t *testing.T) {
	src := NewSeededSource(3)
	for i := 0; i < 1000; i++ {
		if off := StartOffset(src); off < 0 || off >= 360 {
			t.Fatalf("StartOffset out of range: %f", off)
		}
	}
}

func TestTestEntries(t *testing.T) {
	entries := TestEntries(10, NewSeededSource(5))
	if len(entries) != 10 {
		t.Fatalf("TestEntries length = %d, want 10", len(entries))
	}
	for _, e := range entries {
		if e.Name == "" || e.Avatar == "" {
			t.Fatalf("test entry missing fields: %+v", e)
		}
	}
	if got := TestEntries(0, NewSeededSource(5)); len(got) != 0 {
		t.Fatalf("TestEntries(0) should be empty")
	}
}
