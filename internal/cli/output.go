package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/gilkh/livret/internal/export"
)

func writeLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}

func writePrompt(w io.Writer, s string) error {
	_, err := fmt.Fprint(w, s)
	return err
}

func writeVersion(w io.Writer, info map[string]string) error {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%-10s %s\n", k+":", info[k]); err != nil {
			return err
		}
	}
	return nil
}

func writeRendered(w io.Writer, path string, size int) error {
	_, err := fmt.Fprintf(w, "wrote %s (%d bytes)\n", path, size)
	return err
}

func writeBatchResult(w io.Writer, path string, res *export.BatchResult) error {
	_, err := fmt.Fprintf(w, "wrote %s: %d/%d carnets rendered, %d failed\n", path, res.Succeeded, res.Total, res.Failed)
	return err
}

func writeSeedResult(w io.Writer, res *SeedResult) error {
	_, err := fmt.Fprintf(w, "seeded %d classes, %d users, %d students, %d templates, %d assignments\n",
		res.Classes, res.Users, res.Students, res.Templates, res.Assignments)
	return err
}
