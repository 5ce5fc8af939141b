package extraction

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// DocxStrategy extracts paragraph text from Office Open XML word documents.
// A .docx file is a zip archive; the full document body lives in
// word/document.xml, where visible text sits in <w:t> runs grouped into
// <w:p> paragraphs.
type DocxStrategy struct{}

func (s *DocxStrategy) Name() string { return "docx" }

func (s *DocxStrategy) Extract(path, mimetype string) (*Result, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	defer archive.Close()

	var doc *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, extractionErr(s.Name(), path, errors.New("word/document.xml not found in archive"))
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	return &Result{Text: text}, nil
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out       strings.Builder
		paragraph strings.Builder
		inRun     bool
	)
	flush := func() {
		p := strings.TrimSpace(paragraph.String())
		paragraph.Reset()
		if p == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(p)
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inRun {
				paragraph.Write(t)
			}
		}
	}
	flush()
	return out.String(), nil
}
