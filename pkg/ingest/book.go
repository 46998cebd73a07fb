package ingest

import (
	"context"

	"storyweaver/pkg/schema"
)

// Book ingests a validated book: its pages go through Update, then any
// elements the book declares are checked and stored the same way proposed
// elements are.
func (in *Ingestor) Book(ctx context.Context, b schema.Book) (Report, error) {
	for i := range b.Elements {
		if err := b.Elements[i].Validate(); err != nil {
			return Report{}, err
		}
	}

	report, err := in.Update(ctx, Content{StoryID: b.StoryID, Title: b.Title, Pages: b.Pages, Kind: KindBook})
	if err != nil || len(b.Elements) == 0 {
		return report, err
	}

	declared, err := in.apply(ctx, report.StoryID, b.Title, b.Elements)
	if err != nil {
		return report, err
	}
	report.Accepted = append(report.Accepted, declared.Accepted...)
	report.Rejected = append(report.Rejected, declared.Rejected...)
	report.Version = declared.Version
	return report, nil
}
