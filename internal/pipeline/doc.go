// Package pipeline implements the batch orchestrator.
//
// A run walks Init -> ProcessingChunk* -> Finalizing -> Done, with Aborted
// reachable from any chunk on cancellation. The orchestrator:
//   - partitions the ticker universe into fixed-size chunks
//   - fans each chunk out to a bounded worker pool
//   - pauses between chunks to respect the source's rate limits
//   - retries a rate-limited chunk with the configured backoff sequence,
//     degrading to a partial batch once retries are exhausted
//   - flushes everything already computed before exiting on abort
//
// The batch ID is generated once at run start and threaded explicitly
// through every downstream call.
package pipeline
