package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const s3Scheme = "s3://"

// ObjectStoreOptions configures access to an S3-compatible store
type ObjectStoreOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// SourceOptions controls how OpenSource reads a location
type SourceOptions struct {
	// Sheet selects the worksheet of an .xlsx source. Empty means the first sheet.
	Sheet       string
	ObjectStore ObjectStoreOptions
}

// Source is an open dataset. Close releases the underlying file or object.
type Source struct {
	RowReader
	Name   string
	closer io.Closer
}

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenSource opens a local path or an s3://bucket/key location. Files ending
// in .xlsx are read as spreadsheets, everything else as CSV.
func OpenSource(ctx context.Context, location string, opts SourceOptions) (*Source, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasPrefix(location, s3Scheme) {
		rc, err = openObject(ctx, location, opts.ObjectStore)
	} else {
		rc, err = os.Open(location)
	}
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(path.Ext(location), ".xlsx") {
		rows, closer, err := NewXLSXReader(rc, opts.Sheet)
		rc.Close()
		if err != nil {
			return nil, err
		}
		return &Source{RowReader: rows, Name: location, closer: closer}, nil
	}
	return &Source{RowReader: NewCSVReader(rc), Name: location, closer: rc}, nil
}

func openObject(ctx context.Context, location string, opts ObjectStoreOptions) (io.ReadCloser, error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return nil, errors.Errorf("invalid object location %q, expected s3://bucket/key", location)
	}
	if opts.Endpoint == "" {
		return nil, errors.New("object store endpoint is not configured")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object store client")
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s", location)
	}
	// GetObject is lazy; Stat surfaces a missing key before parsing starts.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, errors.Wrapf(os.ErrNotExist, "%s", location)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", location)
	}
	return obj, nil
}

// NewCSVReader reads comma separated rows. Rows may vary in width so the
// importer can count them as rejected instead of failing.
func NewCSVReader(r io.Reader) RowReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}

// xlsxReader adapts an excelize row iterator to RowReader
type xlsxReader struct {
	file  *excelize.File
	rows  *excelize.Rows
	width int
}

// NewXLSXReader reads rows from sheet of the workbook in r
func NewXLSXReader(r io.Reader, sheet string) (RowReader, io.Closer, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open workbook")
	}
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "failed to read sheet %q", sheet)
	}
	x := &xlsxReader{file: f, rows: rows}
	return x, x, nil
}

func (x *xlsxReader) Read() ([]string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	cols, err := x.rows.Columns()
	if err != nil {
		return nil, err
	}
	// Trailing empty cells are not reported, so short rows are padded to the header width
	if x.width == 0 {
		x.width = len(cols)
	}
	for len(cols) < x.width {
		cols = append(cols, "")
	}
	return cols, nil
}

func (x *xlsxReader) Close() error {
	if err := x.rows.Close(); err != nil {
		x.file.Close()
		return err
	}
	return x.file.Close()
}

// isRecoverable reports whether the reader can continue past err
func isRecoverable(err error) bool {
	var parseErr *csv.ParseError
	return errors.As(err, &parseErr)
}
