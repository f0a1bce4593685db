package extract

import "context"

// FileExtractor stands in for content recognition on binary resources: the
// filename becomes both title and content, which keeps uploads findable by
// name.
type FileExtractor struct{}

// Extract implements Extractor.
func (FileExtractor) Extract(_ context.Context, src Source) Document {
	name := src.Filename
	if name == "" {
		name = nameFromURL(src.URL)
	}
	if name == "" {
		return Document{
			Title:          UntitledTitle,
			Ref:            src.Ref,
			Degraded:       true,
			DegradedReason: "no filename",
		}
	}
	return Document{Title: name, Content: name, Ref: src.Ref}
}
