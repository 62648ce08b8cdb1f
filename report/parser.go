package report

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var errIsDirectory = errors.New("is a directory")

// checkEvery bounds how many tokens are decoded between context checks.
const checkEvery = 4096

// Parser turns one report location into its ordered source file records.
type Parser interface {
	Parse(ctx context.Context, location string) (*Report, error)
}

// XMLParser reads JaCoCo XML reports from the local file system.
type XMLParser struct {
	mmapMinSize int64
}

func NewXMLParser(mmapMinSize int64) *XMLParser {
	return &XMLParser{mmapMinSize: mmapMinSize}
}

func (p *XMLParser) Parse(ctx context.Context, location string) (*Report, error) {
	r, closeFn, err := openContent(location, p.mmapMinSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportUnreadable, err)
	}
	defer closeFn()
	return Decode(ctx, location, r)
}

// Decode parses a JaCoCo XML document. Class, method and counter elements are
// ignored; only <sourcefile> line counters are kept. DOCTYPE declarations are
// skipped and never resolved.
func Decode(ctx context.Context, location string, r io.Reader) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	d := xml.NewDecoder(r)
	d.Strict = true

	rep := &Report{Location: location}
	var (
		sawRoot    bool
		inPackage  bool
		pkgName    string
		current    *SourceFile
		lastLineNr int
		tokens     int
	)

	for {
		tokens++
		if tokens%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, invalid("malformed xml: %v", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			name := el.Name.Local
			if !sawRoot {
				if name != "report" {
					return nil, invalid("expected 'report' as root element, found '%s'", name)
				}
				sawRoot = true
				rep.Name = attr(el, "name")
				continue
			}
			switch name {
			case "package":
				if inPackage {
					return nil, invalid("nested 'package' element")
				}
				value, ok := lookupAttr(el, "name")
				if !ok {
					return nil, invalid("couldn't find the attribute 'name' of a 'package'")
				}
				inPackage = true
				pkgName = value
			case "sourcefile":
				if !inPackage {
					return nil, invalid("expected to find 'sourcefile' within a 'package'")
				}
				if current != nil {
					return nil, invalid("nested 'sourcefile' element")
				}
				value, ok := lookupAttr(el, "name")
				if !ok {
					return nil, invalid("couldn't find the attribute 'name' of a 'sourcefile' in package '%s'", pkgName)
				}
				current = &SourceFile{PackageName: pkgName, Name: value}
				lastLineNr = 0
			case "line":
				if current == nil {
					return nil, invalid("expected to find 'line' within a 'sourcefile'")
				}
				line, err := parseLine(el, current.Name)
				if err != nil {
					return nil, err
				}
				if line.Number <= lastLineNr {
					return nil, invalid("line %d of sourcefile '%s' is not after line %d", line.Number, current.Name, lastLineNr)
				}
				lastLineNr = line.Number
				current.Lines = append(current.Lines, line)
			case "class", "sessioninfo", "counter":
				if err := d.Skip(); err != nil {
					return nil, invalid("malformed xml: %v", err)
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "sourcefile":
				if current != nil {
					rep.SourceFiles = append(rep.SourceFiles, *current)
					current = nil
				}
			case "package":
				inPackage = false
				pkgName = ""
			}
		}
	}
	if !sawRoot {
		return nil, invalid("no 'report' element found")
	}
	return rep, nil
}

func parseLine(el xml.StartElement, sourceFile string) (Line, error) {
	var line Line
	fields := []struct {
		name string
		dst  *int
	}{
		{"nr", &line.Number},
		{"mi", &line.MissedInstructions},
		{"ci", &line.CoveredInstructions},
		{"mb", &line.MissedBranches},
		{"cb", &line.CoveredBranches},
	}
	for _, f := range fields {
		raw, ok := lookupAttr(el, f.name)
		if !ok {
			return Line{}, invalid("couldn't find the attribute '%s' for the sourcefile '%s'", f.name, sourceFile)
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Line{}, invalid("failed to parse integer from the attribute '%s' for the sourcefile '%s'", f.name, sourceFile)
		}
		if v < 0 {
			return Line{}, invalid("negative value %d in attribute '%s' for the sourcefile '%s'", v, f.name, sourceFile)
		}
		*f.dst = v
	}
	if line.Number < 1 {
		return Line{}, invalid("line number must be positive for the sourcefile '%s'", sourceFile)
	}
	return line, nil
}

func attr(el xml.StartElement, name string) string {
	v, _ := lookupAttr(el, name)
	return v
}

// lookupAttr reports whether the attribute is present. An empty value is
// present: JaCoCo writes name="" for the default package.
func lookupAttr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: invalid report: %s", ErrReportUnreadable, fmt.Sprintf(format, args...))
}
