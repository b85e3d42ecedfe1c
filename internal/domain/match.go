package domain

// MatchScore is the per-pair confidence breakdown produced by the event
// matcher. Ephemeral: computed per candidate pair, never persisted.
type MatchScore struct {
	TextSimilarity float64 // Jaro-Winkler over normalized titles, [0,1]
	KeywordOverlap float64 // Jaccard over extracted keyword sets, [0,1]
	DateMatch      bool
	CategoryMatch  bool
	NumberMatch    bool
	Overall        float64 // weighted sum, [0,1]
}
