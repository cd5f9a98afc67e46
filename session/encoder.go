package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const (
	recordFormatVersionCurrent = 2
	recordFormatVersionV1      = 1
)

// Encode serializes a record into the compact versioned binary layout used by
// file-backed stores. Times are kept at microsecond precision.
func Encode(r *Record) ([]byte, error) {
	if err := validateRecord(r); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersionCurrent)

	for _, field := range []string{
		r.PrincipalID,
		r.AccessTokenID,
		r.RefreshToken,
		r.RefreshBindingID,
		r.Name,
		r.Role,
		r.StoreName,
		r.StoreCategory,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	for _, ts := range []time.Time{r.ExpiresAt, r.CreatedAt, r.LastUsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts.UnixMicro()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a record written by any supported format version.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent && version != recordFormatVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	r := &Record{}
	fields := []*string{&r.PrincipalID, &r.AccessTokenID, &r.RefreshToken}
	if version == recordFormatVersionCurrent {
		fields = append(fields, &r.RefreshBindingID, &r.Name, &r.Role, &r.StoreName, &r.StoreCategory)
	}
	for _, field := range fields {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}

	for _, ts := range []*time.Time{&r.ExpiresAt, &r.CreatedAt, &r.LastUsedAt} {
		var micros int64
		if err := binary.Read(reader, binary.BigEndian, &micros); err != nil {
			return nil, err
		}
		*ts = time.UnixMicro(micros).UTC()
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session record")
	}
	if version == recordFormatVersionV1 {
		r.RefreshBindingID = r.AccessTokenID
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("session record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}
