package recognize

import (
	"context"
	"os"
	"sync"

	"github.com/kozaktomas/face-match/internal/preprocess"
)

// ImageOutcome is the identify result for one file in a batch.
type ImageOutcome struct {
	Path    string          `json:"path"`
	Result  *IdentifyResult `json:"result,omitempty"`
	Skipped string          `json:"skipped,omitempty"` // decode/identify failure reason
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Outcomes []ImageOutcome `json:"outcomes"`
	Faces    int            `json:"faces"`
	Matched  int            `json:"matched"`
	Skipped  int            `json:"skipped"` // files that could not be processed
}

// IdentifyBatch runs IdentifyImage over many files with a bounded worker
// pool. Unreadable or undecodable files are skipped and counted, never abort
// the batch. progress, when non-nil, is called once per finished file.
func (r *Recognizer) IdentifyBatch(
	ctx context.Context, paths []string, concurrency int, progress func(),
) *BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]ImageOutcome, len(paths))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = r.identifyFile(ctx, path)
			if progress != nil {
				progress()
			}
		}(i, path)
	}
	wg.Wait()

	result := &BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Result == nil {
			result.Skipped++
			continue
		}
		result.Faces += len(o.Result.Faces)
		result.Matched += o.Result.Matched
	}
	return result
}

func (r *Recognizer) identifyFile(ctx context.Context, path string) ImageOutcome {
	outcome := ImageOutcome{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		outcome.Skipped = err.Error()
		return outcome
	}
	img, err := preprocess.DecodeBytes(data)
	if err != nil {
		outcome.Skipped = err.Error()
		return outcome
	}

	result, err := r.IdentifyImage(ctx, img)
	if err != nil {
		outcome.Skipped = err.Error()
		return outcome
	}
	outcome.Result = result
	return outcome
}
