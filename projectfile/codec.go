// Package projectfile reads and writes project files.
//
// A project file is a gzip compressed XML document. The root element
// carries a format version, and every version has its own loader, so files
// written by older releases can still be read after the format changes.
// Scalar fields are stored as elements with a type tag and a value:
//
//	<bpm type="int" value="120"/>
//
// Plain uncompressed XML is accepted on load.
package projectfile

import (
	"bufio"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jokosher/jokosher"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Version is the format version written by Encode.
const Version = "1.0"

const rootElement = "JokosherProject"

var (
	// ErrNotDecodable is returned when the input is not a readable project
	// document at all: neither gzip nor XML, or a different root element.
	ErrNotDecodable = errors.New("not a project document")

	// ErrMalformed is returned when a document of a known version is
	// missing required parts or has values of the wrong type.
	ErrMalformed = errors.New("malformed project document")
)

type loader func(root *node) (jokosher.ProjectData, error)

var loaders = map[string]loader{
	"1.0": loadOneZero,
}

// Encode writes data as an uncompressed XML document to w.
func Encode(w io.Writer, data jokosher.ProjectData) error {
	root := storeProject(&data)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("could not encode project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Decode reads a gzip compressed or plain project document from r and
// dispatches it to the loader of its version. Unknown versions fail with
// *jokosher.UnsupportedProjectVersionError.
func Decode(r io.Reader) (jokosher.ProjectData, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return jokosher.ProjectData{}, fmt.Errorf("%w: %v", ErrNotDecodable, err)
		}
		defer zr.Close()
		src = zr
	}
	var root node
	dec := xml.NewDecoder(src)
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&root); err != nil {
		return jokosher.ProjectData{}, fmt.Errorf("%w: %v", ErrNotDecodable, err)
	}
	if root.name() != rootElement {
		return jokosher.ProjectData{}, fmt.Errorf("%w: root element is <%s>", ErrNotDecodable, root.name())
	}
	version, _ := root.attr("version")
	load, ok := loaders[version]
	if !ok {
		return jokosher.ProjectData{}, &jokosher.UnsupportedProjectVersionError{Version: version}
	}
	return load(&root)
}

// charsetReader accepts the encoding labels older files were written with,
// such as "utf8".
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// Load reads the project file at path.
func Load(path string) (jokosher.ProjectData, error) {
	f, err := os.Open(path)
	if err != nil {
		return jokosher.ProjectData{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Save writes data gzip compressed to path. The document is written to a
// temporary file in the same directory and renamed over path, so a failed
// save leaves the previous file intact.
func Save(path string, data jokosher.ProjectData) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", tmp, err)
	}
	zw := gzip.NewWriter(f)
	err = Encode(zw, data)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not save %s: %w", path, err)
	}
	return nil
}
