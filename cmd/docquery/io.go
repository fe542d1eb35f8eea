package main

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

const (
	formatAuto    = "auto"
	formatJSON    = "json"
	formatMsgpack = "msgpack"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func readFile(path, format string) ([]value.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	docs, err := readDocuments(f, format)
	return docs, errors.Wrap(err, path)
}

// readDocuments decodes Extended JSON (an array or one document per line)
// or a msgpack stream. zstd-compressed input is detected by its magic
// number.
func readDocuments(r io.Reader, format string) ([]value.Document, error) {
	br := bufio.NewReader(r)
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "open zstd stream")
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	if format == formatAuto || format == "" {
		format = detectFormat(br)
	}
	switch format {
	case formatJSON:
		return readJSON(br)
	case formatMsgpack:
		return readMsgpack(br)
	}
	return nil, errors.Errorf("unknown input format %q", format)
}

func detectFormat(br *bufio.Reader) string {
	head, _ := br.Peek(512)
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return formatJSON
	}
	return formatMsgpack
}

func readJSON(r io.Reader) ([]value.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		v, err := value.UnmarshalExtJSONValue(trimmed)
		if err != nil {
			return nil, err
		}
		items, _ := v.AsArray()
		out := make([]value.Document, 0, len(items))
		for i, item := range items {
			d, ok := item.AsDocument()
			if !ok {
				return nil, errors.Errorf("element %d is a %s, not a document", i, item.Kind())
			}
			out = append(out, d)
		}
		return out, nil
	}

	var out []value.Document
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		d, err := value.UnmarshalExtJSON(text)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		out = append(out, d)
	}
	return out, sc.Err()
}

func readMsgpack(br *bufio.Reader) ([]value.Document, error) {
	dec := msgpack.NewDecoder(br)
	var out []value.Document
	for {
		if _, err := br.Peek(1); err == io.EOF {
			return out, nil
		}
		d, err := value.DecodeMsgpack(dec)
		if err != nil {
			return nil, errors.Wrapf(err, "document %d", len(out))
		}
		out = append(out, d)
	}
}

func writeDocuments(w io.Writer, docs []value.Document, format string, compress bool) (err error) {
	if compress {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return errors.Wrap(zerr, "open zstd stream")
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}

	bw := bufio.NewWriter(w)
	switch format {
	case formatJSON, formatAuto, "":
		for _, d := range docs {
			data, err := value.MarshalExtJSON(d)
			if err != nil {
				return err
			}
			bw.Write(data)
			bw.WriteByte('\n')
		}
	case formatMsgpack:
		enc := msgpack.NewEncoder(bw)
		for _, d := range docs {
			if err := value.EncodeMsgpack(enc, d); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unknown output format %q", format)
	}
	return bw.Flush()
}

// readSpec reads a filter or pipeline given inline or, with a leading '@',
// from a file.
func readSpec(arg string) (value.Value, error) {
	data := []byte(arg)
	if len(arg) > 1 && arg[0] == '@' {
		var err error
		if data, err = os.ReadFile(arg[1:]); err != nil {
			return value.Value{}, err
		}
	}
	return value.UnmarshalExtJSONValue(bytes.TrimSpace(data))
}
