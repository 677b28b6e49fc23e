package ingestion

import "strings"

// ChunkFragment is one passage-sized piece of a document, tagged with the
// section it was carved from.
type ChunkFragment struct {
	Text    string
	Section SectionMeta
}

// SectionMeta describes a heading found while parsing a document.
type SectionMeta struct {
	Title string
	Level int
	Order int
}

// TopicMeta names a topic extracted from a document.
type TopicMeta struct {
	Name string
}

type paragraphWithSection struct {
	Text    string
	Section SectionMeta
}

// ExtractTitle returns the first heading in the content, or fallback when no
// heading exists.
func ExtractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); title != "" {
				return title
			}
		}
	}
	return fallback
}

// ChunkMarkdown splits markdown content into passage fragments of roughly
// target characters with paragraph overlap, and reports the headings it saw.
// Level-2 headings double as topics.
func ChunkMarkdown(content string, target, overlap int) ([]ChunkFragment, []SectionMeta, []TopicMeta) {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(clean, "\n\n")

	var (
		sections   []SectionMeta
		topics     []TopicMeta
		paragraphs []paragraphWithSection
		current    SectionMeta
		order      int
	)

	for _, block := range blocks {
		b := strings.TrimSpace(block)
		if b == "" {
			continue
		}

		head, rest, _ := strings.Cut(b, "\n")
		head = strings.TrimSpace(head)
		if strings.HasPrefix(head, "#") {
			level := len(head) - len(strings.TrimLeft(head, "#"))
			title := strings.TrimSpace(strings.TrimLeft(head, "#"))
			if title != "" {
				current = SectionMeta{Title: title, Level: level, Order: order}
				sections = append(sections, current)
				order++
				if level == 2 {
					topics = append(topics, TopicMeta{Name: title})
				}
			}
			b = strings.TrimSpace(rest)
			if b == "" {
				continue
			}
		}

		paragraphs = append(paragraphs, paragraphWithSection{Text: b, Section: current})
	}

	return chunkParagraphs(paragraphs, target, overlap), sections, topics
}

// ChunkPlainText splits unstructured text into passage fragments under a
// single synthetic section named after the document title.
func ChunkPlainText(content, title string, target, overlap int) ([]ChunkFragment, []SectionMeta) {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	section := SectionMeta{Title: title, Level: 1, Order: 0}

	var paragraphs []paragraphWithSection
	for _, block := range strings.Split(clean, "\n\n") {
		b := strings.TrimSpace(block)
		if b == "" {
			continue
		}
		paragraphs = append(paragraphs, paragraphWithSection{Text: b, Section: section})
	}

	// Extracted text without blank lines arrives as one giant block; fall
	// back to line granularity so the target size still applies.
	if len(paragraphs) == 1 && len(paragraphs[0].Text) > target {
		whole := paragraphs[0].Text
		paragraphs = paragraphs[:0]
		for _, line := range strings.Split(whole, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			paragraphs = append(paragraphs, paragraphWithSection{Text: line, Section: section})
		}
	}

	fragments := chunkParagraphs(paragraphs, target, overlap)
	if len(fragments) == 0 {
		return nil, nil
	}
	return fragments, []SectionMeta{section}
}

// chunkParagraphs packs paragraphs into fragments of roughly target
// characters. When overlap is positive the last paragraph of each fragment is
// carried into the next one. A fragment keeps the section of its first
// paragraph.
func chunkParagraphs(paragraphs []paragraphWithSection, target, overlap int) []ChunkFragment {
	var (
		fragments  []ChunkFragment
		current    []paragraphWithSection
		currentLen int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts := make([]string, len(current))
		for i, p := range current {
			parts[i] = p.Text
		}
		fragments = append(fragments, ChunkFragment{
			Text:    strings.Join(parts, "\n\n"),
			Section: current[0].Section,
		})
	}

	for _, paragraph := range paragraphs {
		plen := len(paragraph.Text)
		if currentLen+plen > target && len(current) > 0 {
			flush()
			if overlap > 0 {
				last := current[len(current)-1]
				current = []paragraphWithSection{last}
				currentLen = len(last.Text)
			} else {
				current = current[:0]
				currentLen = 0
			}
		}
		current = append(current, paragraph)
		currentLen += plen
	}
	flush()

	return fragments
}
