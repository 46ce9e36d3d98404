package ingestion_engine

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
)

// streamChunk groups incoming fragments into token-bounded chunks with optional overlap.
//
// frags:          upstream fragments channel.
// targetTokens:   approximate tokens per chunk.
// overlapTokens:  tokens to retain from the end of the previous chunk as seed of the next (e.g., 50).
// out:            receive-only channel of chunk structs with Pos/Text/TokenCnt.
func streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan string,
	targetTokens int,
	overlapTokens int,
) <-chan chunk {
	out := make(chan chunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []string
			tokSum int
			fresh  int // tokens added since the last flush
			pos    int
		)

		flush := func() error {
			if fresh == 0 {
				return nil
			}
			ch := chunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum}
			pos++

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}

			// Keep a tail whose token sum stays within overlapTokens.
			keep := []string{}
			kept := 0
			for j := len(buf) - 1; j >= 0; j-- {
				t := approxTokens(buf[j])
				if kept+t > overlapTokens {
					break
				}
				keep = append([]string{buf[j]}, keep...)
				kept += t
			}
			buf, tokSum, fresh = keep, kept, 0
			return nil
		}

		maxRunes := targetTokens * 4
		for frag := range frags {
			for _, piece := range splitFragment(frag, maxRunes) {
				t := approxTokens(piece)
				if tokSum > 0 && tokSum+t > targetTokens {
					if err := flush(); err != nil {
						return err
					}
				}
				buf = append(buf, piece)
				tokSum += t
				fresh += t
			}
		}

		return flush()
	})

	return out
}

// splitFragment cuts fragments longer than maxRunes, preferring the last
// whitespace before the limit.
func splitFragment(s string, maxRunes int) []string {
	r := []rune(s)
	if maxRunes <= 0 || len(r) <= maxRunes {
		return []string{s}
	}
	var out []string
	for len(r) > maxRunes {
		cut := maxRunes
		for i := maxRunes; i > maxRunes/2; i-- {
			if unicode.IsSpace(r[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(r[:cut])); piece != "" {
			out = append(out, piece)
		}
		r = r[cut:]
	}
	if tail := strings.TrimSpace(string(r)); tail != "" {
		out = append(out, tail)
	}
	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
