package rag

import "github.com/fyrsmithlabs/ragd/internal/vectorstore"

// Source is a (document, page) citation attached to a generated answer.
type Source struct {
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
}

// DedupeSources collapses matches into a unique, ordered list of cited
// sources. The key is the (documentID, pageNumber) pair; first
// occurrence wins, so the list follows retrieval rank order. Scores are
// not carried over.
func DedupeSources(matches []vectorstore.Match) []Source {
	seen := make(map[Source]struct{}, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, match := range matches {
		key := Source{DocumentID: match.DocumentID, PageNumber: match.PageNumber}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, key)
	}
	return sources
}
