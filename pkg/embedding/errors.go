package embedding

import "fmt"

func unsupportedProviderError(p Provider) error {
	return fmt.Errorf("embedding: unsupported provider %q", p)
}

// splitBatches groups texts into batches whose combined character
// count never exceeds maxBatchChars, preserving order. A single text
// longer than maxBatchChars is placed alone in its own batch rather
// than being truncated or split mid-string.
func splitBatches(texts []string) [][]string {
	if len(texts) == 0 {
		return nil
	}

	var batches [][]string
	var current []string
	currentChars := 0

	for _, t := range texts {
		if len(current) > 0 && currentChars+len(t) > maxBatchChars {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}
		current = append(current, t)
		currentChars += len(t)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
