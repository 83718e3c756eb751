// Package ingest consumes a multipart request body as a strict sequence of
// named fields: an optional "message" text part and a required "file" part.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"unicode/utf8"
)

var (
	ErrNotUTF8         = errors.New("message is not valid UTF-8")
	ErrFilenameMissing = errors.New("multipart filename missing")
	ErrNoFile          = errors.New("multipart no file provided")
)

// UnexpectedFieldError reports a field name outside the recognized set.
type UnexpectedFieldError struct{ Name string }

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf("unexpected multipart field %q", e.Name)
}

// DuplicateFieldError reports a recognized field announced twice.
type DuplicateFieldError struct{ Name string }

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate multipart field %q", e.Name)
}

// Payload is the ingested multipart body. Message may be empty; Content is
// never empty on a nil-error return.
type Payload struct {
	Message  string
	Filename string
	Content  []byte
}

// ingestor is a state machine over the field stream. Each field moves
// awaitingField -> readingMessage|readingFile -> awaitingField; end of
// stream moves to done. Any error is terminal.
type ingestor struct {
	st state

	message  bytes.Buffer
	content  bytes.Buffer
	filename string

	seenMessage bool
	seenFile    bool
}

type state int

const (
	awaitingField state = iota
	readingMessage
	readingFile
	done
)

// Read drains mr field by field and returns the assembled payload.
//
// Failure modes, all terminal:
//   - a field named anything but "message" or "file"
//   - a recognized field appearing twice
//   - a "message" body that is not valid UTF-8
//   - a "file" part without a filename
//   - a transport error while reading part bodies
//   - end of stream without non-empty file content
func Read(mr *multipart.Reader) (Payload, error) {
	ing := &ingestor{st: awaitingField}
	for ing.st != done {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			ing.st = done
			break
		}
		if err != nil {
			return Payload{}, err
		}
		if err := ing.beginField(part); err != nil {
			_ = part.Close()
			return Payload{}, err
		}
		if err := ing.readBody(part); err != nil {
			_ = part.Close()
			return Payload{}, err
		}
		_ = part.Close()
		ing.st = awaitingField
	}
	return ing.finish()
}

func (i *ingestor) beginField(part *multipart.Part) error {
	if i.st != awaitingField {
		return fmt.Errorf("field announced in state %d", i.st)
	}
	switch name := part.FormName(); name {
	case "message":
		if i.seenMessage {
			return &DuplicateFieldError{Name: name}
		}
		i.seenMessage = true
		i.st = readingMessage
	case "file":
		if i.seenFile {
			return &DuplicateFieldError{Name: name}
		}
		if part.FileName() == "" {
			return ErrFilenameMissing
		}
		i.seenFile = true
		i.filename = part.FileName()
		i.st = readingFile
	default:
		return &UnexpectedFieldError{Name: name}
	}
	return nil
}

func (i *ingestor) readBody(r io.Reader) error {
	switch i.st {
	case readingMessage:
		if _, err := io.Copy(&i.message, r); err != nil {
			return err
		}
		if !utf8.Valid(i.message.Bytes()) {
			return ErrNotUTF8
		}
	case readingFile:
		if _, err := io.Copy(&i.content, r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("body chunk in state %d", i.st)
	}
	return nil
}

func (i *ingestor) finish() (Payload, error) {
	if i.st != done {
		return Payload{}, fmt.Errorf("finish in state %d", i.st)
	}
	if !i.seenFile || i.content.Len() == 0 {
		return Payload{}, ErrNoFile
	}
	return Payload{
		Message:  i.message.String(),
		Filename: i.filename,
		Content:  i.content.Bytes(),
	}, nil
}
