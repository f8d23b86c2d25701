package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Writer writes LF-terminated delimited lines.
type Writer struct {
	w         *bufio.Writer
	delimiter string
	bytes     int64
}

func NewWriter(w io.Writer, delimiter string) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64<<10), delimiter: Delimiter(delimiter)}
}

func (w *Writer) WriteHeader(columns []string) error {
	return w.writeLine(EncodeHeader(columns, w.delimiter))
}

func (w *Writer) WriteRow(values []any) error {
	return w.writeLine(EncodeRow(values, w.delimiter))
}

func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrIO, err)
	}
	return nil
}

func (w *Writer) BytesWritten() int64 {
	return w.bytes
}

func (w *Writer) writeLine(line string) error {
	n, err := w.w.WriteString(line)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("%w: write line: %v", ErrIO, err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: write line: %v", ErrIO, err)
	}
	w.bytes++
	return nil
}

// Reader yields lines without their terminator. Lines of any length are
// accepted and a trailing CR is stripped.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64<<10)}
}

// ReadLine returns io.EOF once no further line exists. A final line without
// a terminator is still returned.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", io.EOF
			}
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", fmt.Errorf("%w: read line: %v", ErrIO, err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
