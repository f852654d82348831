package cli

import (
	"io"
	"os"

	"github.com/roach88/usc/internal/diag"
	"github.com/roach88/usc/internal/jsondoc"
)

// readInput opens and parses a JSON input file.
func readInput(path string) (jsondoc.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, diag.MsgOpenInput, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, diag.MsgReadInput, err)
	}
	doc, err := jsondoc.Parse(data)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, diag.MsgReadInput, err)
	}
	return doc, nil
}
