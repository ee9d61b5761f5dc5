// Package scanning provides the built-in content scanner and the helper the
// pipeline uses to turn any scanner verdict into a tagged error.
package scanning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"parcel/internal/fileutil"
	"parcel/internal/services"
)

const stageName = "scan"

// EICAR is the industry-standard antivirus test string.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

const chunkSize = 64 * 1024

// Signature names a byte pattern the scanner rejects.
type Signature struct {
	Name    string
	Pattern []byte
}

// SignatureScanner streams a file and rejects it when any signature occurs.
type SignatureScanner struct {
	signatures []Signature
	overlap    int
}

// NewSignatureScanner builds a scanner for EICAR plus the extra patterns.
// Blank patterns are ignored.
func NewSignatureScanner(extra ...string) *SignatureScanner {
	sigs := []Signature{{Name: "EICAR-Test-File", Pattern: []byte(EICAR)}}
	for i, pattern := range extra {
		if pattern == "" {
			continue
		}
		sigs = append(sigs, Signature{Name: fmt.Sprintf("custom-%d", i+1), Pattern: []byte(pattern)})
	}
	overlap := 0
	for _, sig := range sigs {
		if len(sig.Pattern) > overlap {
			overlap = len(sig.Pattern)
		}
	}
	return &SignatureScanner{signatures: sigs, overlap: overlap - 1}
}

// Scan implements services.Scanner.
func (s *SignatureScanner) Scan(ctx context.Context, path string) (services.Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return services.Verdict{}, services.Wrap(services.ErrIO, stageName, "open", path, err)
	}
	defer f.Close()

	reader := fileutil.Reader(ctx, f)
	buf := make([]byte, 0, chunkSize+s.overlap)
	chunk := make([]byte, chunkSize)
	for {
		n, readErr := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if name, found := s.match(buf); found {
				return services.Verdict{Clean: false, Threat: name}, nil
			}
			// Keep a tail so patterns spanning chunk boundaries are still found.
			if keep := s.overlap; len(buf) > keep {
				buf = append(buf[:0], buf[len(buf)-keep:]...)
			}
		}
		if readErr == io.EOF {
			return services.Verdict{Clean: true}, nil
		}
		if readErr != nil {
			if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
				return services.Verdict{}, ctxErr
			}
			return services.Verdict{}, services.Wrap(services.ErrIO, stageName, "read", path, readErr)
		}
	}
}

func (s *SignatureScanner) match(data []byte) (string, bool) {
	for _, sig := range s.signatures {
		if bytes.Contains(data, sig.Pattern) {
			return sig.Name, true
		}
	}
	return "", false
}

// Check runs scanner over path and converts a dirty verdict into an error
// tagged services.ErrScan. Scanner failures other than context errors are
// passed through with their own tags.
func Check(ctx context.Context, scanner services.Scanner, path string) error {
	if scanner == nil {
		return nil
	}
	verdict, err := scanner.Scan(ctx, path)
	if err != nil {
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return ctxErr
		}
		if services.KindOf(err) == services.KindUnknown {
			return services.Wrap(services.ErrIO, stageName, "scan", "scanner failed", err)
		}
		return err
	}
	if !verdict.Clean {
		threat := verdict.Threat
		if threat == "" {
			threat = "unspecified threat"
		}
		return services.Wrap(services.ErrScan, stageName, "", "content rejected: "+threat, nil)
	}
	return nil
}
