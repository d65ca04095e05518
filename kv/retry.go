package kv

import "context"

// RetryGet calls s.Get, retrying exactly once more if the first attempt
// returns an error. Backend failures are retried at most once on read and
// surface immediately on write, so this helper is used only on the
// store's and index manager's read paths, never on Put/Batch.
func RetryGet(ctx context.Context, s Store, key []byte) ([]byte, bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err == nil {
		return v, ok, nil
	}
	return s.Get(ctx, key)
}

// RetryRangeScan calls s.RangeScan, retrying exactly once more if the
// first attempt returns an error.
func RetryRangeScan(ctx context.Context, s Store, prefix []byte) (Iterator, error) {
	it, err := s.RangeScan(ctx, prefix)
	if err == nil {
		return it, nil
	}
	return s.RangeScan(ctx, prefix)
}
