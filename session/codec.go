package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// The binary layout is fixed-width after the user ID so the rotation Lua
// script can locate the refresh hash without a full decode:
//
//	version(1) uidLen(1) uid(n) status(1) refreshHash(32)
//	mfaVerifiedAt(8) mfaExpiresAt(8) createdAt(8) expiresAt(8)
const sessionFormatVersion1 = 1

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion1)

	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("invalid userID length")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	buf.WriteByte(s.Status)
	buf.Write(s.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.MFAVerifiedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.MFAExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	s.UserID = string(userID)

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Status = status

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.MFAVerifiedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.MFAExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}
