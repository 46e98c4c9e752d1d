package loggers

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// CSV logs metric rows to a CSV file. The header is fixed by the keys
// of the first write, in sorted order, and later writes must supply a
// value for every column.
type CSV struct {
	file   *os.File
	writer *csv.Writer
	header []string
}

// NewCSV creates path, and any missing parent directories, and returns
// a CSV logger writing to it.
func NewCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("newCSV: could not create "+
				"directory: %v", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("newCSV: could not create file: %v", err)
	}

	return &CSV{file: file, writer: csv.NewWriter(file)}, nil
}

// Write appends values as one row, writing the header first if this is
// the first row. Keys not in the header are ignored.
func (c *CSV) Write(values map[string]float64) error {
	if c.header == nil {
		c.header = make([]string, 0, len(values))
		for key := range values {
			c.header = append(c.header, key)
		}
		sort.Strings(c.header)

		if err := c.writer.Write(c.header); err != nil {
			return fmt.Errorf("write: could not write header: %v", err)
		}
	}

	row := make([]string, len(c.header))
	for i, key := range c.header {
		value, ok := values[key]
		if !ok {
			return fmt.Errorf("write: no value for column %v", key)
		}
		row[i] = strconv.FormatFloat(value, 'g', -1, 64)
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("write: %v", err)
	}
	c.writer.Flush()

	return c.writer.Error()
}

// Close flushes buffered rows and closes the file
func (c *CSV) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
