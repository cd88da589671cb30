package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const docxDocumentXMLPath = "word/document.xml"

var (
	// wpTag matches one paragraph, with or without attributes.
	wpTag = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	// wtTag matches <w:t>text</w:t> with any attributes.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// mainPartRe finds the main document part override in [Content_Types].xml.
	mainPartRe = regexp.MustCompile(`<Override[^>]*(?:PartName="([^"]+)"[^>]*ContentType="[^"]*wordprocessingml\.document\.main\+xml"|ContentType="[^"]*wordprocessingml\.document\.main\+xml"[^>]*PartName="([^"]+)")`)
)

// extractDOCX returns one line per paragraph of the main document part.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docPath := docxDocumentXMLPath
	if types, err := readZipFile(zr, "[Content_Types].xml"); err == nil {
		if m := mainPartRe.FindStringSubmatch(string(types)); m != nil {
			docPath = strings.TrimPrefix(m[1]+m[2], "/")
		}
	}
	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	var lines []string
	for _, p := range wpTag.FindAllString(string(docXML), -1) {
		var line strings.Builder
		for _, t := range wtTag.FindAllStringSubmatch(p, -1) {
			line.WriteString(t[1])
		}
		lines = append(lines, line.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}
