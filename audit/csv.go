package audit

import (
	"context"
	"encoding/csv"
	"github.com/pkg/errors"
	"github.com/securefed/go-coordinator/types"
	"os"
	"strconv"
	"sync"
)

var csvHeader = []string{"Round", "Node_ID", "SHA256_Hash", "Status"}

// CSVSink appends one row per record and fsyncs after every row, so a crash loses
// at most the row being written.
type CSVSink struct {
	mutex  sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening audit csv %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat audit csv")
	}

	s := CSVSink{file: f, writer: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.writeRow(csvHeader); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "writing csv header")
		}
	}

	return &s, nil
}

func (s *CSVSink) AppendAuditRecord(_ context.Context, record types.AuditRecord) (types.AuditRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	row := Row(record)
	if err := s.writeRow(row); err != nil {
		return types.AuditRecord{}, errors.Wrapf(err, "writing audit row for node %s", record.NodeID)
	}

	return record, nil
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}

	return s.file.Sync()
}

func (s *CSVSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.file.Close()
}

func Header() []string {
	return append([]string(nil), csvHeader...)
}

func Row(record types.AuditRecord) []string {
	return []string{
		strconv.FormatUint(record.Round, 10),
		record.NodeID,
		record.Fingerprint,
		record.Verdict.String(),
	}
}
