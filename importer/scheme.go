package importer

import (
	"strings"

	"covimport/project"
	"covimport/report"
)

// Resolver maps a report's package and file name to a project file.
type Resolver interface {
	Resolve(packageName, fileName string) (project.File, bool)
}

// PackageScheme records whether a report's package paths carry a duplicated
// root package segment. It is decided once per report.
type PackageScheme struct {
	StrippedRootPrefix bool `json:"stripped_root_prefix"`
}

// DecideScheme probes the resolver with the first record of a report. The
// probe only selects the scheme; the record is still resolved afterwards
// like every other record.
func DecideScheme(resolver Resolver, first report.SourceFile) PackageScheme {
	if _, ok := resolver.Resolve(first.PackageName, first.Name); ok {
		return PackageScheme{}
	}
	_, ok := resolver.Resolve(stripRootPrefix(first), first.Name)
	return PackageScheme{StrippedRootPrefix: ok}
}

// EffectivePackage returns the package path to resolve sf under this scheme.
func (s PackageScheme) EffectivePackage(sf report.SourceFile) string {
	if !s.StrippedRootPrefix {
		return sf.PackageName
	}
	return stripRootPrefix(sf)
}

func (s PackageScheme) String() string {
	if s.StrippedRootPrefix {
		return "stripped-root"
	}
	return "literal"
}

// stripRootPrefix removes only the first occurrence of "<root>/".
func stripRootPrefix(sf report.SourceFile) string {
	return strings.Replace(sf.PackageName, sf.RootPackageName()+"/", "", 1)
}
