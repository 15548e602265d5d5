package utterance

import (
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := NewGenerator()

	if got := gen.Next("sess-1", "user"); got != "sess-1-user-1" {
		t.Errorf("expected 'sess-1-user-1', got %s", got)
	}
	if got := gen.Next("sess-1", "bot"); got != "sess-1-bot-2" {
		t.Errorf("expected 'sess-1-bot-2', got %s", got)
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	gen := NewGenerator()
	const workers, perWorker = 50, 20

	var wg sync.WaitGroup
	results := make(chan string, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- gen.Next("sess", "user")
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate utterance id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("expected %d ids, got %d", workers*perWorker, len(seen))
	}
}
