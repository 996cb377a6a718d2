package universe

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads the ticker universe from a flat file: one symbol per line,
// whitespace trimmed, blanks skipped, uppercased, de-duplicated preserving
// first occurrence. A missing or unreadable file is fatal for the run.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tickers file: %w", err)
	}
	defer f.Close()

	var (
		tickers []string
		seen    = make(map[string]struct{})
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		symbol := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		tickers = append(tickers, symbol)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tickers file: %w", err)
	}

	return tickers, nil
}

// Chunk partitions tickers into fixed-size chunks. The last chunk may be
// short. Order is preserved.
func Chunk(tickers []string, size int) [][]string {
	if size < 1 || len(tickers) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(tickers)+size-1)/size)
	for start := 0; start < len(tickers); start += size {
		end := start + size
		if end > len(tickers) {
			end = len(tickers)
		}
		chunks = append(chunks, tickers[start:end])
	}
	return chunks
}
