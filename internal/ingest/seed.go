package ingest

import (
	"context"
	"fmt"

	"rhema/internal/models"
)

// SeedEntry is a curated passage stored as a single chunk.
type SeedEntry struct {
	Content  string
	Metadata models.ChunkMetadata
}

// DoctrineBank returns the built-in doctrine statements followed by the scripture bank.
func DoctrineBank() []SeedEntry {
	doctrine := []struct{ topic, text string }{
		{"Faith", "Faith is not just mental assent. It is the spiritual currency of the Kingdom. According to Hebrews 11:1, faith is the 'substance' (the physical title deed) of things hoped for. You do not wait to feel it; you act on the Word."},
		{"Healing", "Healing is a finished work of the cross (1 Peter 2:24). We do not pray trying to convince God to heal; we pray from the position that He has already provided it. It is legally ours."},
		{"Authority", "The believer's authority is delegated power. Just as a traffic policeman stops cars with a badge, we stop the enemy using the Name of Jesus. The power is in the Name, not in our own holiness."},
	}
	verses := []string{
		"Faith is the substance of things hoped for, the evidence of things not seen. (Hebrews 11:1)",
		"Peace I leave with you; my peace I give you. I do not give to you as the world gives. (John 14:27)",
		"The Lord is my shepherd, I lack nothing. He makes me lie down in green pastures. (Psalm 23:1-2)",
		"But the fruit of the Spirit is love, joy, peace, forbearance, kindness, goodness, faithfulness. (Galatians 5:22)",
		"For I know the plans I have for you, plans to prosper you and not to harm you, plans to give you hope and a future. (Jeremiah 29:11)",
	}

	out := make([]SeedEntry, 0, len(doctrine)+len(verses))
	for _, d := range doctrine {
		out = append(out, SeedEntry{
			Content:  d.text,
			Metadata: models.ChunkMetadata{Topic: d.topic, Type: "Doctrine", TotalChunks: 1},
		})
	}
	for _, v := range verses {
		out = append(out, SeedEntry{
			Content:  v,
			Metadata: models.ChunkMetadata{Source: "Scripture Bank", Type: "Verse", TotalChunks: 1},
		})
	}
	return out
}

// Seed embeds and stores each entry without chunking. Failed entries are skipped.
func (in *Ingestor) Seed(ctx context.Context, entries []SeedEntry) (FileReport, error) {
	report := FileReport{Source: "seed", Chunks: len(entries)}
	fmt.Fprintf(in.out, "Seeding %d entries...\n", len(entries))
	for i, e := range entries {
		if err := in.embedAndStore(ctx, e.Content, e.Metadata); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Skipped = append(report.Skipped, i)
			continue
		}
		report.Stored++
		label := e.Metadata.Topic
		if label == "" {
			label = preview(e.Content, 30)
		}
		fmt.Fprintf(in.out, "  - Seeded: %s\n", label)
	}
	fmt.Fprintf(in.out, "Seeded %d/%d entries.\n", report.Stored, len(entries))
	return report, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
