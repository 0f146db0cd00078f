package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"document-qa/internal/models"
)

var slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slideFile struct {
	number int
	file   *zip.File
}

func parsePPTX(filePath, source string) ([]models.DocumentUnit, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// zip order is not slide order
	var slides []slideFile
	for _, file := range f.File {
		m := slidePathRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{number: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var units []models.DocumentUnit
	for _, s := range slides {
		text, err := readSlide(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.number, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, models.DocumentUnit{
			Content: text,
			Source:  source,
			Page:    s.number,
		})
	}
	return units, nil
}

func readSlide(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return extractXMLText(rc, "t", "p")
}

// extractXMLText collects the character data of textTag elements, emitting a
// newline at the end of every paraTag element. Office tab and break elements
// become whitespace.
func extractXMLText(r io.Reader, textTag, paraTag string) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		text   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textTag:
				inText = true
			case "tab":
				text.WriteString("\t")
			case "br":
				text.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				text.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	return strings.TrimSpace(text.String()), nil
}
