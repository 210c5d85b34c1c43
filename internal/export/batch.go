package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/rendering"
	"github.com/gilkh/livret/internal/version"
)

// DefaultConcurrency bounds parallel renders in a batch.
const DefaultConcurrency = 3

// BatchResult summarises a finished batch.
type BatchResult struct {
	ID        string
	Total     int
	Succeeded int
	Failed    int
}

type batchItem struct {
	id  string
	doc *Document
	err error
}

// BatchWriter renders many assignments with a bounded worker pool and
// streams them into one ZIP archive. Entries are written as renders finish.
type BatchWriter struct {
	svc         *Service
	concurrency int
	active      atomic.Int32
}

func NewBatchWriter(svc *Service, concurrency int) *BatchWriter {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &BatchWriter{svc: svc, concurrency: concurrency}
}

// ActiveWorkers reports workers currently rendering.
func (b *BatchWriter) ActiveWorkers() int { return int(b.active.Load()) }

// Prepare resolves the back end and makes sure it can render. Callers do
// this before writing any response bytes so launch failures surface as a
// clean error.
func (b *BatchWriter) Prepare(ctx context.Context, backendName string) (rendering.Backend, error) {
	backend, err := b.svc.Backend(backendName)
	if err != nil {
		return nil, err
	}
	if err := backend.Ready(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return backend, nil
}

// Write renders ids with backend into a ZIP written to w. A failed item
// becomes errors/<id>.txt and the batch continues. Each entry is flushed to
// w as it is written. When ctx is cancelled or w fails, pending renders are
// abandoned and the archive is left unterminated.
func (b *BatchWriter) Write(ctx context.Context, w io.Writer, ids []string, backend rendering.Backend) (*BatchResult, error) {
	ids = uniqueIDs(ids)
	result := &BatchResult{ID: uuid.NewString(), Total: len(ids)}
	start := time.Now()

	logging.InfoWithComponent(logging.ComponentBatch, "Starting batch export",
		"batch_id", result.ID, "items", len(ids), "backend", backend.Name(), "workers", b.concurrency)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	results := make(chan batchItem, b.concurrency)
	var wg sync.WaitGroup

	workers := min(b.concurrency, len(ids))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					return
				}
				b.active.Add(1)
				doc, err := b.renderOne(ctx, backend, id)
				b.active.Add(-1)
				select {
				case results <- batchItem{id: id, doc: doc, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	zw := zip.NewWriter(w)
	names := newNameSet()
	var manifest []string
	var writeErr error

	for item := range results {
		if writeErr != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			writeErr = err
			continue
		}

		if item.err != nil {
			result.Failed++
			logging.WarnWithComponent(logging.ComponentBatch, "Batch item failed", "batch_id", result.ID, "assignment_id", item.id, "error", item.err)
			name := "errors/" + safeID(item.id) + ".txt"
			writeErr = writeEntry(zw, name, []byte(item.err.Error()+"\n"), zip.Deflate)
			manifest = append(manifest, fmt.Sprintf("error\t%s\t%s", item.id, name))
		} else {
			result.Succeeded++
			name := names.add(item.doc.FileName)
			writeErr = writeEntry(zw, name, item.doc.Data, zip.Store)
			manifest = append(manifest, fmt.Sprintf("ok\t%s\t%s", item.id, name))
		}
		if writeErr != nil {
			// the client is gone; stop the remaining renders
			cancel()
		}
	}

	if writeErr == nil {
		writeErr = ctx.Err()
	}
	if writeErr != nil {
		logging.WarnWithComponent(logging.ComponentBatch, "Batch export aborted", "batch_id", result.ID, "written", result.Succeeded+result.Failed, "error", writeErr)
		return result, writeErr
	}

	info := fmt.Sprintf("batch %s\ngenerated %s by livret %s\nbackend %s\ntotal %d, succeeded %d, failed %d\n\n%s\n",
		result.ID, time.Now().UTC().Format(time.RFC3339), version.Version, backend.Name(),
		result.Total, result.Succeeded, result.Failed, strings.Join(manifest, "\n"))
	if err := writeEntry(zw, "info.txt", []byte(info), zip.Deflate); err != nil {
		return result, err
	}
	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("failed to finish archive: %w", err)
	}

	logging.InfoWithComponent(logging.ComponentBatch, "Batch export complete",
		"batch_id", result.ID, "succeeded", result.Succeeded, "failed", result.Failed,
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (b *BatchWriter) renderOne(ctx context.Context, backend rendering.Backend, id string) (*Document, error) {
	job, err := b.svc.LoadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.svc.render(ctx, backend, job)
}

func writeEntry(zw *zip.Writer, name string, data []byte, method uint16) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := zw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func safeID(id string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, id)
}

// nameSet hands out unique archive names, suffixing repeats: two students
// with the same name get carnet-x-y.pdf and carnet-x-y-2.pdf.
type nameSet map[string]int

func newNameSet() nameSet { return nameSet{} }

func (s nameSet) add(name string) string {
	s[name]++
	n := s[name]
	if n == 1 {
		return name
	}
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}
	for {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if _, taken := s[candidate]; !taken {
			s[candidate] = 1
			return candidate
		}
		n++
	}
}
