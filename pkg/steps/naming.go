package steps

import (
	"cmp"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// OutputName derives the identifier of result idx out of n from the input
// identifier.
//
// An explicit output_file is used as is, with _<idx> before its extension
// when there are several results. Otherwise a known suffix is stripped from
// the input stem and the step's suffix (default: the lower-cased step name)
// is appended, so foo.fits run through "cleanup" becomes foo_cleanup.fits.
// output_ext replaces the input extension.
func (s *Instance) OutputName(input string, idx, n int, known []string) string {
	if f := s.config.String(ParamOutputFile); f != "" {
		if n <= 1 {
			return f
		}
		ext := filepath.Ext(f)
		return strings.TrimSuffix(f, ext) + "_" + strconv.Itoa(idx) + ext
	}

	var stem, ext string
	if input != "" {
		base := filepath.Base(input)
		ext = filepath.Ext(base)
		stem = strings.TrimSuffix(base, ext)
	}
	if e := s.search(ParamOutputExt, false); e != "" {
		ext = "." + strings.TrimPrefix(e, ".")
	}

	stem, sep := stripKnownSuffix(stem, known)

	suffix := s.search(ParamSuffix, false)
	if suffix == "" {
		suffix = strings.ToLower(s.name)
	}

	name := suffix
	if stem != "" {
		name = stem + sep + suffix
	}
	if n > 1 {
		name += "_" + strconv.Itoa(idx)
	}
	return name + ext
}

// stripKnownSuffix removes one trailing "_<known>" or "-<known>" from stem
// and returns the separator it used, "_" by default.
func stripKnownSuffix(stem string, known []string) (string, string) {
	for _, k := range known {
		if k == "" {
			continue
		}
		for _, sep := range []string{"_", "-"} {
			tail := sep + k
			if len(stem) > len(tail) && strings.HasSuffix(stem, tail) {
				return strings.TrimSuffix(stem, tail), sep
			}
		}
	}
	return stem, "_"
}

// knownSuffixes collects the runtime's suffixes plus the names and suffixes
// of every instance in the tree, longest first.
func (s *Instance) knownSuffixes(rt *Runtime) []string {
	known := slices.Clone(rt.KnownSuffixes)
	s.Root().walk(func(i *Instance) {
		known = append(known, strings.ToLower(i.name))
		if sfx := i.config.String(ParamSuffix); sfx != "" {
			known = append(known, sfx)
		}
	})
	slices.SortFunc(known, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return slices.Compact(known)
}

// search returns the first non-empty string parameter up the instance tree.
// parentFirst lets ancestors override the instance's own value.
func (s *Instance) search(name string, parentFirst bool) string {
	if parentFirst && s.parent != nil {
		if v := s.parent.search(name, true); v != "" {
			return v
		}
	}
	if v := s.config.String(name); v != "" {
		return v
	}
	if !parentFirst && s.parent != nil {
		return s.parent.search(name, false)
	}
	return ""
}
