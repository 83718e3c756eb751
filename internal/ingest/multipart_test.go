package ingest

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"
)

type field struct {
	name     string
	filename string // empty for plain form fields
	body     []byte
	rawPart  bool // write without filename even for file-like parts
}

func buildBody(t *testing.T, fields []field) (*multipart.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		var (
			pw  io.Writer
			err error
		)
		switch {
		case f.filename != "":
			pw, err = w.CreateFormFile(f.name, f.filename)
		case f.rawPart:
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="`+f.name+`"`)
			pw, err = w.CreatePart(h)
		default:
			pw, err = w.CreateFormField(f.name)
		}
		if err != nil {
			t.Fatalf("create part %q: %v", f.name, err)
		}
		if _, err := pw.Write(f.body); err != nil {
			t.Fatalf("write part %q: %v", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return multipart.NewReader(&buf, w.Boundary()), w.FormDataContentType()
}

func TestReadMessageAndFile(t *testing.T) {
	t.Parallel()
	mr, _ := buildBody(t, []field{
		{name: "message", body: []byte("disk almost full")},
		{name: "file", filename: "df.txt", body: []byte("83% /var")},
	})
	p, err := Read(mr)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if p.Message != "disk almost full" {
		t.Fatalf("Message = %q", p.Message)
	}
	if p.Filename != "df.txt" {
		t.Fatalf("Filename = %q", p.Filename)
	}
	if string(p.Content) != "83% /var" {
		t.Fatalf("Content = %q", p.Content)
	}
}

func TestReadFileOnlyYieldsEmptyMessage(t *testing.T) {
	t.Parallel()
	mr, _ := buildBody(t, []field{
		{name: "file", filename: "core.gz", body: []byte{0x1f, 0x8b, 0x00}},
	})
	p, err := Read(mr)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if p.Message != "" {
		t.Fatalf("Message = %q, want empty", p.Message)
	}
	if len(p.Content) != 3 {
		t.Fatalf("Content len = %d", len(p.Content))
	}
}

// Field order must not matter: file before message is fine.
func TestReadFileBeforeMessage(t *testing.T) {
	t.Parallel()
	mr, _ := buildBody(t, []field{
		{name: "file", filename: "a.bin", body: []byte("x")},
		{name: "message", body: []byte("hi")},
	})
	p, err := Read(mr)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if p.Message != "hi" || p.Filename != "a.bin" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestReadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields []field
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty file content",
			fields: []field{{name: "file", filename: "empty.txt"}},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNoFile) {
					t.Fatalf("err = %v, want ErrNoFile", err)
				}
			},
		},
		{
			name:   "no file field at all",
			fields: []field{{name: "message", body: []byte("text only")}},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNoFile) {
					t.Fatalf("err = %v, want ErrNoFile", err)
				}
			},
		},
		{
			name: "unexpected field first",
			fields: []field{
				{name: "attachment", filename: "a.txt", body: []byte("x")},
			},
			check: func(t *testing.T, err error) {
				var ufe *UnexpectedFieldError
				if !errors.As(err, &ufe) || ufe.Name != "attachment" {
					t.Fatalf("err = %v, want UnexpectedFieldError{attachment}", err)
				}
			},
		},
		{
			name: "unexpected field after valid ones",
			fields: []field{
				{name: "message", body: []byte("m")},
				{name: "file", filename: "f", body: []byte("x")},
				{name: "extra", body: []byte("y")},
			},
			check: func(t *testing.T, err error) {
				var ufe *UnexpectedFieldError
				if !errors.As(err, &ufe) || ufe.Name != "extra" {
					t.Fatalf("err = %v, want UnexpectedFieldError{extra}", err)
				}
			},
		},
		{
			name: "file without filename",
			fields: []field{
				{name: "file", rawPart: true, body: []byte("x")},
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrFilenameMissing) {
					t.Fatalf("err = %v, want ErrFilenameMissing", err)
				}
			},
		},
		{
			name: "message not utf8",
			fields: []field{
				{name: "message", body: []byte{0xff, 0xfe, 0xfd}},
				{name: "file", filename: "f", body: []byte("x")},
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNotUTF8) {
					t.Fatalf("err = %v, want ErrNotUTF8", err)
				}
			},
		},
		{
			name: "duplicate file field",
			fields: []field{
				{name: "file", filename: "a", body: []byte("x")},
				{name: "file", filename: "b", body: []byte("y")},
			},
			check: func(t *testing.T, err error) {
				var dfe *DuplicateFieldError
				if !errors.As(err, &dfe) || dfe.Name != "file" {
					t.Fatalf("err = %v, want DuplicateFieldError{file}", err)
				}
			},
		},
		{
			name: "duplicate message field",
			fields: []field{
				{name: "message", body: []byte("a")},
				{name: "message", body: []byte("b")},
			},
			check: func(t *testing.T, err error) {
				var dfe *DuplicateFieldError
				if !errors.As(err, &dfe) || dfe.Name != "message" {
					t.Fatalf("err = %v, want DuplicateFieldError{message}", err)
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mr, _ := buildBody(t, tt.fields)
			_, err := Read(mr)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

// A truncated stream must abort with the transport error, not ErrNoFile.
func TestReadTruncatedStream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	pw, err := w.CreateFormFile("file", "big.bin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := pw.Write(bytes.Repeat([]byte("z"), 1024)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cut := buf.Len() / 2
	mr := multipart.NewReader(strings.NewReader(buf.String()[:cut]), w.Boundary())
	_, err = Read(mr)
	if err == nil {
		t.Fatal("expected error for truncated stream")
	}
	if errors.Is(err, ErrNoFile) {
		t.Fatalf("truncation misreported as %v", err)
	}
}
