package dataset

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// LoadCSV reads a labeled corpus from a comma-separated file. The first row
// must be a header naming every required column.
func LoadCSV(path string) ([]Labeled, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses a labeled corpus from an open reader.
func ReadCSV(r io.Reader) ([]Labeled, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("dataset: empty csv")
	}
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv header")
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "dataset: read csv row")
		}
		rows = append(rows, record)
	}

	return parseRows(header, rows)
}
