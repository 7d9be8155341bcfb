package tsv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Writer writes tab separated rows. Floats are written in scientific notation.
type Writer struct {
	closer io.Closer

	*csv.Writer

	// Precision is the number of digits after the decimal point of each float.
	Precision int

	record []string
}

func NewWriterFile(filename string) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", filename)
	}

	w := NewWriter(f)
	w.closer = f
	return w, nil
}

func NewWriter(out io.Writer) *Writer {
	tsv := csv.NewWriter(out)
	tsv.Comma = '\t'
	return &Writer{
		Writer:    tsv,
		Precision: 6,
	}
}

// WriteFloats writes one row of numbers.
func (w *Writer) WriteFloats(values ...float64) error {
	w.record = w.record[:0]
	for _, v := range values {
		w.record = append(w.record, strconv.FormatFloat(v, 'e', w.Precision, 64))
	}
	return w.Writer.Write(w.record)
}

// Close flushes the rows and closes the file the writer was created on.
func (w *Writer) Close() error {
	w.Writer.Flush()
	if err := w.Writer.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
