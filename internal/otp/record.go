package otp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	recordVersionV1 = 1
	recordVersionV2 = 2
)

var errCorruptRecord = errors.New("corrupt otp record")

// Record is one issued OTP. Attempts is not part of the encoded payload: it
// is read from the attempts counter so it can only move through the store's
// atomic increment.
type Record struct {
	Code        string
	SubjectKey  string
	Purpose     string
	IssuedAt    time.Time
	Attempts    int
	MaxAttempts int
	RequestIP   string
	// Nonce distinguishes issuances, so two records with the same code and
	// second never encode to the same bytes.
	Nonce uint64
}

// encodeRecord writes the v2 layout:
// version(1) issuedAt(8 big-endian unix) maxAttempts(1) nonce(8) then code,
// subject, purpose and ip, each as uint16 length + bytes.
// v1 is the same without the nonce.
func encodeRecord(r *Record) ([]byte, error) {
	if r.MaxAttempts <= 0 || r.MaxAttempts > 255 {
		return nil, errors.New("otp record max attempts out of range")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersionV2)
	if err := binary.Write(&buf, binary.BigEndian, r.IssuedAt.Unix()); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(r.MaxAttempts))
	if err := binary.Write(&buf, binary.BigEndian, r.Nonce); err != nil {
		return nil, err
	}

	for _, field := range []string{r.Code, r.SubjectKey, r.Purpose, r.RequestIP} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptRecord
	}
	if version != recordVersionV1 && version != recordVersionV2 {
		return nil, errCorruptRecord
	}

	var issuedAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, errCorruptRecord
	}
	maxAttempts, err := reader.ReadByte()
	if err != nil || maxAttempts == 0 {
		return nil, errCorruptRecord
	}
	var nonce uint64
	if version == recordVersionV2 {
		if err := binary.Read(reader, binary.BigEndian, &nonce); err != nil {
			return nil, errCorruptRecord
		}
	}

	fields := make([]string, 4)
	for i := range fields {
		s, err := readString(reader)
		if err != nil {
			return nil, errCorruptRecord
		}
		fields[i] = s
	}
	if reader.Len() != 0 || fields[0] == "" {
		return nil, errCorruptRecord
	}

	return &Record{
		Code:        fields[0],
		SubjectKey:  fields[1],
		Purpose:     fields[2],
		RequestIP:   fields[3],
		IssuedAt:    time.Unix(issuedAt, 0),
		MaxAttempts: int(maxAttempts),
		Nonce:       nonce,
	}, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("otp record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
