package workers

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/internal/config"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// analysisWorkerID is the actor recorded in the audit trail for every
// write the worker performs.
const analysisWorkerID = "analysis-worker"

// AnalysisWorker consumes the PGMQ analysis queue and writes tags and a
// summary back onto documents. It never touches the database without an
// organization context: the org id captured at enqueue time becomes an
// override context, so the worker's updates go through the same tenant
// filter as the HTTP path.
type AnalysisWorker struct {
	Analysis  *services.AnalysisService
	Documents *services.DocumentService
}

func NewAnalysisWorker(analysis *services.AnalysisService, documents *services.DocumentService) *AnalysisWorker {
	return &AnalysisWorker{Analysis: analysis, Documents: documents}
}

// Start polls the queue until the context is cancelled.
func (w *AnalysisWorker) Start(ctx context.Context) {
	poll := time.Duration(config.App.Analysis.PollSeconds) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}

	log.Printf("Analysis worker started, polling %q every %s", config.App.Analysis.QueueName, poll)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Analysis worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *AnalysisWorker) processBatch(ctx context.Context) {
	messages, err := w.Analysis.Read(ctx, 10)
	if err != nil {
		log.Printf("Analysis worker: failed to read queue: %v", err)
		return
	}

	for _, msg := range messages {
		if err := w.processMessage(ctx, msg); err != nil {
			log.Printf("Analysis worker: failed to process document %s (msg %d): %v",
				msg.Request.DocumentID, msg.MsgID, err)
			continue
		}
		if err := w.Analysis.Delete(ctx, msg.MsgID); err != nil {
			log.Printf("Analysis worker: failed to ack message %d: %v", msg.MsgID, err)
		}
	}
}

func (w *AnalysisWorker) processMessage(ctx context.Context, msg services.QueuedAnalysis) error {
	if msg.Request.DocumentID == "" || msg.Request.OrganizationID == "" {
		// A message without an organization cannot be scoped; drop it.
		log.Printf("Analysis worker: dropping message %d without document or organization", msg.MsgID)
		return nil
	}

	override := &tenant.Context{
		OrganizationID: msg.Request.OrganizationID,
		UserID:         analysisWorkerID,
	}

	if err := w.Documents.SetAnalysisStatus(ctx, override, msg.Request.DocumentID, db.AnalysisAnalyzing, nil, ""); err != nil {
		if tenant.CodeOf(err) == tenant.CodeNotFound {
			// Deleted between enqueue and processing; ack and move on.
			return nil
		}
		return err
	}

	doc, err := w.Documents.GetForAnalysis(ctx, override, msg.Request.DocumentID)
	if err != nil {
		if tenant.CodeOf(err) == tenant.CodeNotFound {
			return nil
		}
		w.markFailed(ctx, override, msg.Request.DocumentID)
		return err
	}

	tags := extractTags(doc.Title+" "+doc.Content, config.App.Analysis.MaxTags)
	summary := summarize(doc.Content, config.App.Analysis.SummaryLines)

	if err := w.Documents.SetAnalysisStatus(ctx, override, doc.ID, db.AnalysisCompleted, tags, summary); err != nil {
		w.markFailed(ctx, override, doc.ID)
		return err
	}

	log.Printf("Analysis worker: completed document %s (%d tags)", doc.ID, len(tags))
	return nil
}

func (w *AnalysisWorker) markFailed(ctx context.Context, override *tenant.Context, documentID string) {
	if err := w.Documents.SetAnalysisStatus(ctx, override, documentID, db.AnalysisFailed, nil, ""); err != nil {
		log.Printf("Analysis worker: failed to mark document %s failed: %v", documentID, err)
	}
}

// stopwords are excluded from tag extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "about": true, "which": true, "when": true, "were": true,
	"been": true, "into": true, "than": true, "them": true, "these": true,
	"some": true, "other": true, "such": true, "only": true, "also": true,
}

// extractTags picks the most frequent non-stopword terms as tags.
func extractTags(text string, max int) []string {
	if max <= 0 {
		max = 5
	}

	freq := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		freq[word]++
	}

	type wordCount struct {
		word  string
		count int
	}
	counts := make([]wordCount, 0, len(freq))
	for word, count := range freq {
		counts = append(counts, wordCount{word, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})

	tags := make([]string, 0, max)
	for _, wc := range counts {
		if len(tags) == max {
			break
		}
		tags = append(tags, wc.word)
	}
	return tags
}

// summarize returns the first maxLines sentences of the content.
func summarize(content string, maxLines int) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if maxLines <= 0 {
		maxLines = 3
	}

	var sentences []string
	start := 0
	for i, r := range content {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(content[start : i+1])
			if s != "" && s != "." {
				sentences = append(sentences, s)
			}
			start = i + 1
			if len(sentences) == maxLines {
				break
			}
		}
	}
	if len(sentences) < maxLines && start < len(content) {
		if s := strings.TrimSpace(content[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	summary := strings.Join(sentences, " ")
	if len(summary) > 1000 {
		// Cut on a rune boundary so a multi-byte character is never
		// split mid-sequence.
		cut := 997
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut] + "..."
	}
	return summary
}
