package main

import (
	"fmt"
	"io"
	"os"
)

// writeOutput writes payload to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, payload []byte, newline bool) error {
	if path == "" {
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if !newline {
			return nil
		}
		_, err := fmt.Fprintln(w)
		return err
	}
	if newline {
		payload = append(payload, '\n')
	}
	return os.WriteFile(path, payload, 0o644)
}
