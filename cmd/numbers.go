package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

// readNumbers parses the identifiers given as arguments and, when listFile is
// set, one per line from that file. Blank lines and lines starting with # are
// ignored. Every invalid identifier is reported.
func readNumbers(args []string, listFile string) ([]patent.PatentNumber, error) {
	raws := append([]string{}, args...)
	if listFile != "" {
		f, err := os.Open(listFile)
		if err != nil {
			return nil, fmt.Errorf("open number list: %w", err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raws = append(raws, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read number list: %w", err)
		}
	}

	var (
		numbers []patent.PatentNumber
		errs    []error
	)
	for _, raw := range raws {
		pn, err := patent.Parse(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		numbers = append(numbers, pn)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, errors.New("no patent numbers given")
	}
	return numbers, nil
}
