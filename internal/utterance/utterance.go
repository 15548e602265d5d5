// Package utterance assigns ids to exported speech turns and guards their
// partial/final ordering.
package utterance

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out utterance ids unique within a process.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns "<sessionID>-<speaker>-<n>".
func (g *Generator) Next(sessionID, speaker string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%s-%d", sessionID, speaker, n)
}
