package rag

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// AssembleContext formats retrieved matches into the prompt context.
//
// Each match becomes a labeled block carrying its text and source
// attribution, in retrieval rank order:
//
//	[Source 1]
//	<text>
//	Document: <documentId>, Page: <pageNumber>
//
// Blocks are joined by a blank line. Every given match is reproduced;
// nothing is truncated or dropped here. The topK cap is imposed
// upstream by the retriever.
func AssembleContext(matches []vectorstore.Match) string {
	blocks := make([]string, len(matches))
	for i, match := range matches {
		blocks[i] = fmt.Sprintf("[Source %d]\n%s\nDocument: %s, Page: %d",
			i+1, match.Text, match.DocumentID, match.PageNumber)
	}
	return strings.Join(blocks, "\n\n")
}
