package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"ragkb/internal/domain"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(w io.Writer, st domain.Stats) {
	fmt.Fprintf(w, "Documents:   %d\n", st.Documents)
	fmt.Fprintf(w, "Chunks:      %d\n", st.ChunkCount)
	fmt.Fprintf(w, "Vocabulary:  %d\n", st.VocabularySize)
	fmt.Fprintf(w, "Avg chunk:   %.1f tokens\n", st.AverageChunkLength)
	fmt.Fprintf(w, "Strategy:    %s\n", st.Strategy)
	fmt.Fprintf(w, "Generation:  %d\n", st.Generation)
	if !st.BuiltAt.IsZero() {
		fmt.Fprintf(w, "Built at:    %s\n", st.BuiltAt.Format(time.RFC3339))
	}
}
